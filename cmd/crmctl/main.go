// Command crmctl talks to a running crmd over its Unix socket.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/crmchat/internal/api"
	"github.com/matheus3301/crmchat/internal/profile"
)

var (
	profileFlag string
	jsonOut     bool
	timeout     time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "Control a running crmd daemon",
	Long: `crmctl sends commands to the crmd daemon of a profile.

Examples:
  crmctl status
  crmctl --profile work send c-1024 "保单已寄出"
  echo "姓名：王芳" | crmctl extract -`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		profileFlag = profile.Resolve(profileFlag)
		return profile.ValidateName(profileFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
}

// withClient dials the profile daemon and runs fn with a bounded context.
func withClient(fn func(ctx context.Context, c *api.Client) error) error {
	c, err := api.Dial(socketPath())
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for profile %q: %w", profileFlag, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, c)
}

func socketPath() string {
	return profile.SocketPath(profileFlag)
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput returns arg, or all of r when arg is "-" or empty.
func readInput(arg string, r io.Reader) (string, error) {
	if arg != "" && arg != "-" {
		return arg, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}
