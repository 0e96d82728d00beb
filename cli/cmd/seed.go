package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lensai/lensai-stack/cli/internal/client"
	"github.com/lensai/lensai-stack/cli/internal/seeder"
	"github.com/lensai/lensai-stack/cli/pkg/output"
)

var seedConfigFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic usage events",
	Long: `Generate realistic LLM usage events and submit them to the ingest service.

Configuration is loaded from (in priority order):
  1. Command-line flags
  2. ./seeder.yaml
  3. ~/.lensai/seeder.yaml
  4. Built-in defaults`,
	Example: `  lensai seed --count 500
  lensai seed --count 10000 --projects 5 --time-spread 7d --concurrency 8
  lensai seed --auth-mode hmac --secret s3cret`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedConfigFile, "seeder-config", "", "seeder config file (default: ./seeder.yaml or ~/.lensai/seeder.yaml)")
	seedCmd.Flags().Int("count", 1000, "number of events to generate")
	seedCmd.Flags().Int("projects", 3, "number of distinct projects")
	seedCmd.Flags().String("time-spread", "24h", "spread events backwards over this window (e.g. 2h, 7d)")
	seedCmd.Flags().Int("concurrency", 4, "parallel senders")
	seedCmd.Flags().Duration("interval", 0, "pause between events")
	seedCmd.Flags().Float64("error-rate", 0.05, "fraction of events with a failure status")
	seedCmd.Flags().Int64("seed", 0, "random seed (0 picks one)")
	seedCmd.Flags().String("auth-mode", "", "none, hmac or jwt")
	seedCmd.Flags().String("secret", "", "shared secret for hmac or jwt")
}

func runSeed(cmd *cobra.Command, args []string) error {
	scfg, err := seeder.LoadConfig(seedConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load seeder config: %w", err)
	}

	flags := cmd.Flags()
	d := &scfg.Defaults
	if flags.Changed("url") || d.URL == "" {
		d.URL = ingestURL(cmd)
	}
	if flags.Changed("count") {
		d.Count, _ = flags.GetInt("count")
	}
	if flags.Changed("projects") {
		d.Projects, _ = flags.GetInt("projects")
	}
	if flags.Changed("time-spread") {
		s, _ := flags.GetString("time-spread")
		spread, err := seeder.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid time-spread: %w", err)
		}
		d.TimeSpread = spread
	}
	if flags.Changed("concurrency") {
		d.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("interval") {
		d.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("error-rate") {
		d.ErrorRate, _ = flags.GetFloat64("error-rate")
	}
	if flags.Changed("seed") {
		d.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("auth-mode") {
		d.AuthMode, _ = flags.GetString("auth-mode")
	}
	if flags.Changed("secret") {
		d.Secret, _ = flags.GetString("secret")
	}
	if err := scfg.Validate(); err != nil {
		return err
	}

	opts, err := clientOptions(d.AuthMode, d.Secret, "")
	if err != nil {
		return err
	}
	runner := seeder.NewRunner(scfg, client.NewIngestClient(d.URL, opts...))

	res, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("seeder failed: %w", err)
	}

	if outputFormat(cmd) == "json" {
		return output.JSON(res)
	}

	table := output.NewTable([]string{"Status", "Count"})
	codes := make([]int, 0, len(res.ByStatus))
	for code := range res.ByStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		table.AddRow([]string{strconv.Itoa(code), strconv.Itoa(res.ByStatus[code])})
	}
	if res.Failed > 0 {
		table.AddRow([]string{"transport error", strconv.Itoa(res.Failed)})
	}
	table.Render()

	if res.Accepted == res.Sent {
		output.Success("All %d events accepted", res.Accepted)
	} else {
		output.Warn("%d of %d events accepted", res.Accepted, res.Sent)
	}
	return nil
}
