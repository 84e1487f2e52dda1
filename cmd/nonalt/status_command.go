package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nonalt/internal/msg"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent and store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *msg.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				printStatus(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, resp msg.StatusResponse) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Agent", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Running", boolKind(resp.Running), yesNo(resp.Running), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Scanning", statusInfo, yesNo(resp.Scanning), colorize))
	fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, strconv.Itoa(resp.PID), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, resp.SocketPath, colorize))
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Store", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, resp.DBPath, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Queue", statusInfo, strconv.Itoa(resp.QueueLength), colorize))
	fmt.Fprintln(stdout, renderStatusLine("History", statusInfo, strconv.Itoa(resp.HistoryCount), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Post map", statusInfo, strconv.Itoa(resp.PostMapCount), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Usage", usageKind(resp.UsageBytes, resp.QuotaBytes), formatUsage(resp.UsageBytes, resp.QuotaBytes), colorize))
}

func boolKind(value bool) statusKind {
	if value {
		return statusOK
	}
	return statusWarn
}

// usageKind warns once usage crosses 80 percent of the eviction quota.
func usageKind(usage, quota int64) statusKind {
	if quota > 0 && usage*5 >= quota*4 {
		return statusWarn
	}
	return statusOK
}

func formatUsage(usage, quota int64) string {
	if quota <= 0 {
		return formatBytes(usage)
	}
	return fmt.Sprintf("%s of %s", formatBytes(usage), formatBytes(quota))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	value := float64(n)
	suffixes := []string{"KiB", "MiB", "GiB", "TiB"}
	for _, suffix := range suffixes {
		value /= unit
		if value < unit || suffix == suffixes[len(suffixes)-1] {
			return fmt.Sprintf("%.1f %s", value, suffix)
		}
	}
	return fmt.Sprintf("%d B", n)
}
