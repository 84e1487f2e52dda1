package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nonalt/internal/msg"
)

func newReblogCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reblog",
		Short: "Repost every queued post through the connected browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.Reblog()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if err := resp.Err(); err != nil {
					// A partial drain still reports what finished before
					// the failing entry.
					if strings.TrimSpace(resp.Message) != "" {
						fmt.Fprintln(stdout, resp.Message)
					}
					return err
				}
				if strings.TrimSpace(resp.Message) != "" {
					fmt.Fprintln(stdout, resp.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Queue drained")
				return nil
			})
		},
	}
}
