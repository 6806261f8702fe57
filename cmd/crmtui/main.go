package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/crmchat/internal/api"
	"github.com/matheus3301/crmchat/internal/config"
	"github.com/matheus3301/crmchat/internal/profile"
	"github.com/matheus3301/crmchat/internal/tui"
	"github.com/matheus3301/crmchat/internal/tui/ui"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	theme, err := loadTheme(profileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	socketPath := profile.SocketPath(profileName)

	// Check daemon health; auto-start if needed.
	if !pingDaemon(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", profileName)
		if err := startDaemon(profileName); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	app := tui.NewApp(c, profileName, theme)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadTheme reads tui.theme from the profile config.
func loadTheme(profileName string) (*ui.Theme, error) {
	cfg, err := config.Load(profile.ConfigPath(profileName))
	if err != nil {
		return nil, err
	}
	return ui.ThemeNamed(cfg.TUI.Theme)
}

// pingDaemon checks that a daemon answers Status on the socket.
func pingDaemon(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	c, err := api.Dial(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = c.Status(ctx)
	return err == nil
}

func startDaemon(profileName string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	crmd := filepath.Join(filepath.Dir(executable), "crmd")

	if _, err := os.Stat(crmd); err != nil {
		crmd = "crmd"
	}

	cmd := exec.Command(crmd, "--profile", profileName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pingDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
