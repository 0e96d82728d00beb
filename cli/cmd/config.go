package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lensai/lensai-stack/cli/pkg/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		secret := ""
		if c.Secret != "" {
			secret = "********"
		}
		if outputFormat(cmd) == "json" {
			return output.JSON(map[string]string{
				"ingest_url": c.IngestURL,
				"auth_mode":  c.AuthMode,
				"secret":     secret,
				"nats_url":   c.NATSURL,
				"output":     c.Output,
				"path":       c.Path(),
			})
		}
		table := output.NewTable([]string{"Key", "Value"})
		table.AddRow([]string{"ingest_url", c.IngestURL})
		table.AddRow([]string{"auth_mode", c.AuthMode})
		table.AddRow([]string{"secret", secret})
		table.AddRow([]string{"nats_url", c.NATSURL})
		table.AddRow([]string{"output", c.Output})
		table.Render()
		output.Info("\nConfig file: %s", c.Path())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Set a configuration value and save it",
	Example: `  lensai config set ingest_url https://ingest.example.com
  lensai config set auth_mode hmac`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		key, value := args[0], args[1]
		switch key {
		case "ingest_url":
			c.IngestURL = value
		case "auth_mode":
			switch value {
			case "none", "hmac", "jwt":
			default:
				return fmt.Errorf("auth_mode must be none, hmac or jwt")
			}
			c.AuthMode = value
		case "secret":
			c.Secret = value
		case "nats_url":
			c.NATSURL = value
		case "output":
			c.Output = value
		default:
			return fmt.Errorf("unknown config key %q", key)
		}
		if err := c.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		output.Success("Saved %s to %s", key, c.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
