package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/matheus3301/crmchat/internal/api"
)

var prefillAllKinds bool

func init() {
	rootCmd.AddCommand(extractCmd, prefillCmd)
	prefillCmd.Flags().BoolVar(&prefillAllKinds, "all-kinds", false, "include non-text messages")
}

var extractCmd = &cobra.Command{
	Use:   "extract [text|-]",
	Short: "Extract customer fields from free text",
	Long: `Extract customer fields from free text with the active templates.

Examples:
  crmctl extract "姓名：王芳 手机：13912345678"
  pbpaste | crmctl extract -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var arg string
		if len(args) == 1 {
			arg = args[0]
		}
		text, err := readInput(arg, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ExtractText(ctx, text)
			if err != nil {
				return err
			}
			return printFields(cmd.OutOrStdout(), resp.Fields)
		})
	},
}

var prefillCmd = &cobra.Command{
	Use:   "prefill <conversation> <message-id>...",
	Short: "Extract one record from selected messages of a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ExtractSelection(ctx, &api.ExtractSelectionRequest{
				ConversationID: args[0],
				MessageIDs:     args[1:],
				AllKinds:       prefillAllKinds,
			})
			if err != nil {
				return err
			}
			return printFields(cmd.OutOrStdout(), resp.Fields)
		})
	},
}

func printFields(w io.Writer, fields map[string]string) error {
	if jsonOut {
		if fields == nil {
			fields = map[string]string{}
		}
		return outputJSON(w, fields)
	}
	if len(fields) == 0 {
		_, err := fmt.Fprintln(w, "No fields found.")
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%-22s %s\n", k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}
