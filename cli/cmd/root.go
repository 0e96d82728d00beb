package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lensai/lensai-stack/cli/internal/client"
	"github.com/lensai/lensai-stack/cli/internal/config"
	"github.com/lensai/lensai-stack/common/signing"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lensai",
	Short: "LensAI Stack CLI",
	Long: `lensai is the command-line interface for the LensAI usage pipeline.

Send usage events to the ingest service, seed synthetic traffic,
issue project tokens and inspect the dead letter queue.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.lensai/config.yaml)")
	rootCmd.PersistentFlags().String("url", "", "ingest service URL (overrides config)")
	rootCmd.PersistentFlags().String("output", "", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// ingestURL resolves --url against the loaded config.
func ingestURL(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		return u
	}
	return currentConfig().IngestURL
}

// outputFormat resolves --output against the loaded config.
func outputFormat(cmd *cobra.Command) string {
	if o, _ := cmd.Flags().GetString("output"); o != "" {
		return o
	}
	return currentConfig().Output
}

func currentConfig() *config.Config {
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg
}

// clientOptions builds the ingest client's auth from mode and secret.
// In jwt mode the secret signs a short-lived token scoped to projectID.
func clientOptions(mode, secret, projectID string) ([]client.Option, error) {
	switch mode {
	case "", "none":
		return nil, nil
	case "hmac":
		if secret == "" {
			return nil, fmt.Errorf("auth mode hmac requires a secret (--secret or config)")
		}
		return []client.Option{client.WithHMAC(secret)}, nil
	case "jwt":
		if secret == "" {
			return nil, fmt.Errorf("auth mode jwt requires a secret (--secret or config)")
		}
		token, err := signing.IssueToken(secret, projectID, "lensai-cli", tokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		return []client.Option{client.WithBearerToken(token)}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}
