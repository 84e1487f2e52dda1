package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nonalt/internal/msg"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect completed-repost history",
	}

	var jsonOutput bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded image URLs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.HistoryList()
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
					fmt.Fprintln(stdout, "History is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Entries))
				for i, entry := range resp.Entries {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						entry.ImageURL,
						entry.RecordedAt.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"#", "Image", "Recorded"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit history entries as JSON")

	historyCmd.AddCommand(listCmd)
	return historyCmd
}
