package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lensai/lensai-stack/cli/pkg/output"
	natsclient "github.com/lensai/lensai-stack/common/messaging/nats"
	"github.com/lensai/lensai-stack/ingest/pkg/dlq"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Dead letter queue commands",
	Long:  "Inspect and purge events the ingest service could not append to the object store",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered events",
	Example: `  lensai dlq list
  lensai dlq list --limit 20 --output json
  lensai dlq list --project proj-1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		filter := dlqFilter(cmd)

		return withDLQ(cmd, func(ctx context.Context, q *dlq.JetStreamQueue) error {
			events, err := q.List(ctx, filter, limit)
			if err != nil {
				return fmt.Errorf("failed to list dead letters: %w", err)
			}

			if outputFormat(cmd) == "json" {
				return output.JSON(events)
			}
			if len(events) == 0 {
				output.Info("No dead-lettered events")
				return nil
			}

			table := output.NewTable([]string{"Failed At", "Key", "Project", "Request", "Reason", "Attempts", "Error"})
			for _, fe := range events {
				request := ""
				if fe.Event != nil {
					request = fe.Event.RequestID
				}
				table.AddRow([]string{
					fe.Timestamp.Format(time.RFC3339),
					fe.Key,
					fe.ProjectID(),
					request,
					fe.Reason,
					strconv.Itoa(fe.Attempts),
					truncate(fe.Error, 60),
				})
			}
			table.Render()
			output.Info("\nShowing %d event(s)", len(events))
			return nil
		})
	},
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead letter stream statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDLQ(cmd, func(ctx context.Context, q *dlq.JetStreamQueue) error {
			stats := q.Stats(ctx)
			if outputFormat(cmd) == "json" {
				return output.JSON(stats)
			}
			if stats.Error != "" {
				return fmt.Errorf("failed to read stream info: %s", stats.Error)
			}

			table := output.NewTable([]string{"Stat", "Value"})
			table.AddRow([]string{"total_messages", strconv.FormatUint(stats.Messages, 10)})
			table.AddRow([]string{"total_bytes", strconv.FormatUint(stats.Bytes, 10)})
			for _, r := range sortedKeys(stats.ByReason) {
				table.AddRow([]string{"reason " + r, strconv.FormatUint(stats.ByReason[r], 10)})
			}
			for _, p := range sortedKeys(stats.ByProject) {
				table.AddRow([]string{"project " + p, strconv.FormatUint(stats.ByProject[p], 10)})
			}
			table.Render()
			return nil
		})
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete dead-lettered events",
	Example: `  lensai dlq purge --force
  lensai dlq purge --project proj-1 --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("purge is irreversible; re-run with --force")
		}
		filter := dlqFilter(cmd)

		return withDLQ(cmd, func(ctx context.Context, q *dlq.JetStreamQueue) error {
			if err := q.Purge(ctx, filter); err != nil {
				return fmt.Errorf("failed to purge: %w", err)
			}
			output.Success("Dead letter queue purged")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqStatsCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)

	dlqCmd.PersistentFlags().String("nats-url", "", "NATS server URL (overrides config)")
	dlqCmd.PersistentFlags().Duration("timeout", 10*time.Second, "operation timeout")
	for _, c := range []*cobra.Command{dlqListCmd, dlqPurgeCmd} {
		c.Flags().String("reason", "", "only events dead-lettered for this reason")
		c.Flags().String("project", "", "only events for this project")
	}
	dlqListCmd.Flags().Int("limit", 50, "maximum events to show")
	dlqPurgeCmd.Flags().Bool("force", false, "confirm the purge")
}

// withDLQ connects to JetStream, binds the dead letter stream and runs fn.
func withDLQ(cmd *cobra.Command, fn func(context.Context, *dlq.JetStreamQueue) error) error {
	url, _ := cmd.Flags().GetString("nats-url")
	if url == "" {
		url = currentConfig().NATSURL
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	js, err := natsclient.NewJetStreamClient(natsclient.Config{URL: url, Name: "lensai-cli", MaxReconnects: 1})
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	defer js.Close()

	q, err := dlq.NewJetStreamQueue(ctx, js)
	if err != nil {
		return err
	}
	return fn(ctx, q)
}

func dlqFilter(cmd *cobra.Command) dlq.Filter {
	reason, _ := cmd.Flags().GetString("reason")
	project, _ := cmd.Flags().GetString("project")
	return dlq.Filter{Reason: reason, ProjectID: project}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
