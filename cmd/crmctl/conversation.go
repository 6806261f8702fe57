package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/crmchat/internal/api"
	"github.com/matheus3301/crmchat/internal/message"
)

var (
	sendKind    string
	sendReplyTo string
	watchPrefix string
)

func init() {
	rootCmd.AddCommand(statusCmd, openCmd, listCmd, sendCmd, editCmd, deleteCmd, discardCmd, watchCmd)

	sendCmd.Flags().StringVar(&sendKind, "kind", string(message.KindText), "message kind")
	sendCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "id of the message being replied to")
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", `event kind prefix, e.g. "message." or "sync."`)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return outputJSON(out, resp)
			}
			fmt.Fprintf(out, "Profile: %s\n", resp.Profile)
			fmt.Fprintf(out, "State:   %s\n", resp.State)
			fmt.Fprintf(out, "Sender:  %s\n", resp.SenderID)
			fmt.Fprintf(out, "Uptime:  %s\n", time.Duration(resp.UptimeMs)*time.Millisecond)
			if len(resp.Conversations) > 0 {
				fmt.Fprintf(out, "Open:    %s\n", strings.Join(resp.Conversations, ", "))
			}
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <conversation>",
	Short: "Start tracking a conversation and print its cached messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.Open(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			return printMessages(cmd.OutOrStdout(), resp.Messages)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list <conversation>",
	Short: "Print the message list of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.List(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			return printMessages(cmd.OutOrStdout(), resp.Messages)
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation> [text|-]",
	Short: "Queue a message for delivery",
	Long: `Queue a message for delivery. The text is read from stdin when omitted or "-".
The command returns as soon as the message is queued; use "crmctl watch" to
follow delivery.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var arg string
		if len(args) == 2 {
			arg = args[1]
		}
		text, err := readInput(arg, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.Send(ctx, &api.SendRequest{
				ConversationID: args[0],
				Kind:           message.Kind(sendKind),
				Content:        text,
				ReplyTo:        sendReplyTo,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", resp.TempID)
			return nil
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <message-id> <text>",
	Short: "Edit one of your sent messages",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.Edit(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			return printMessages(cmd.OutOrStdout(), []message.Message{resp.Message})
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete one of your sent messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			if err := c.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <conversation> <temp-id>",
	Short: "Drop a pending or failed outgoing message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			if err := c.Discard(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discarded %s\n", args[1])
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := api.Dial(socketPath())
		if err != nil {
			return fmt.Errorf("cannot connect to daemon for profile %q: %w", profileFlag, err)
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		err = c.Watch(ctx, watchPrefix, func(evt api.Event) error {
			if jsonOut {
				return outputJSON(out, evt)
			}
			ts := time.UnixMilli(evt.OccurredAtMs).Format("15:04:05.000")
			_, err := fmt.Fprintf(out, "%s  %-24s %v\n", ts, evt.Kind, evt.Payload)
			return err
		})
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func printMessages(w io.Writer, msgs []message.Message) error {
	if len(msgs) == 0 {
		_, err := fmt.Fprintln(w, "No messages.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, m := range msgs {
		content := m.Content
		if m.Edited {
			content += " (edited)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.CreatedAt.Local().Format("01-02 15:04"), m.ID, m.SenderName, m.Status, content)
	}
	return tw.Flush()
}
