package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nonalt/internal/msg"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the pending repost queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending reposts in processing order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.QueueList()
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Entries)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(stdout, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Entries))
				for i, entry := range resp.Entries {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						entry.PostURL,
						strconv.Itoa(len(entry.ImageURLs)),
						entry.EnqueuedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"#", "Post", "Images", "Enqueued"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit queue entries as JSON")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <post-url> <image-url> [image-url...]",
		Short: "Queue a post for reposting",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postURL := strings.TrimSpace(args[0])
			if postURL == "" {
				return fmt.Errorf("post url is required")
			}
			imageURLs := make([]string, 0, len(args)-1)
			for _, arg := range args[1:] {
				if trimmed := strings.TrimSpace(arg); trimmed != "" {
					imageURLs = append(imageURLs, trimmed)
				}
			}
			if len(imageURLs) == 0 {
				return fmt.Errorf("at least one image url is required")
			}
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.QueueForReblogging(msg.QueueForRebloggingRequest{
					PostURL:   postURL,
					ImageURLs: imageURLs,
				})
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%d images)\n", postURL, len(imageURLs))
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <post-url>",
		Short: "Remove one pending post from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			postURL := strings.TrimSpace(args[0])
			if postURL == "" {
				return fmt.Errorf("post url is required")
			}
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.DequeueForReblogging(msg.DequeueForRebloggingRequest{PostURL: postURL})
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Removed {
					fmt.Fprintf(stdout, "%s is not queued\n", postURL)
					return nil
				}
				fmt.Fprintf(stdout, "Removed %s\n", postURL)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every pending repost",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.QueueClear()
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d queued posts\n", resp.Removed)
				return nil
			})
		},
	}
}
