package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nonalt/internal/msg"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Control the feed scan session",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start scanning the feed for repostable images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.ScanStart()
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Started {
					if strings.TrimSpace(resp.Message) != "" {
						fmt.Fprintln(stdout, resp.Message)
						return nil
					}
					fmt.Fprintln(stdout, "Scan already running")
					return nil
				}
				fmt.Fprintln(stdout, "Scan started")
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running scan session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.ScanStop()
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Stopped {
					fmt.Fprintln(stdout, "No scan is running")
					return nil
				}
				fmt.Fprintln(stdout, "Scan stopped")
				return nil
			})
		},
	}

	scanCmd.AddCommand(startCmd)
	scanCmd.AddCommand(stopCmd)
	return scanCmd
}
