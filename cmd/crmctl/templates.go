package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matheus3301/crmchat/internal/api"
)

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesExportCmd, templatesImportCmd)
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage extraction templates",
	Long: `Manage the extraction templates of a profile.

A template document is a JSON object mapping a field name to a list of
regular expressions. Imported patterns take precedence over the built-in ones.

Examples:
  crmctl templates export > templates.json
  crmctl templates import templates.json`,
}

var templatesExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the active templates document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ExportTemplates(ctx)
			if err != nil {
				return err
			}
			doc := resp.Document
			if !strings.HasSuffix(doc, "\n") {
				doc += "\n"
			}
			if len(args) == 0 || args[0] == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			}
			return os.WriteFile(args[0], []byte(doc), 0600)
		})
	},
}

var templatesImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Replace the custom templates with a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc string
		if args[0] == "-" {
			var err error
			if doc, err = readInput("-", cmd.InOrStdin()); err != nil {
				return err
			}
		} else {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read templates: %w", err)
			}
			doc = string(b)
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ImportTemplates(ctx, doc)
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d fields: %s\n", len(resp.Fields), strings.Join(resp.Fields, ", "))
			return nil
		})
	},
}
