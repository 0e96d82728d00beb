package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lensai/lensai-stack/cli/pkg/output"
	"github.com/lensai/lensai-stack/common/signing"
)

// tokenTTL bounds tokens minted implicitly by send and seed in jwt mode.
const tokenTTL = 15 * time.Minute

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Ingest token management",
	Long:  "Issue HS256 bearer tokens accepted by an ingest service running in jwt auth mode",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token",
	Example: `  lensai token issue --secret s3cret --project proj-1 --ttl 24h
  lensai token issue --secret s3cret --ttl 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		project, _ := cmd.Flags().GetString("project")
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if secret == "" {
			secret = currentConfig().Secret
		}
		if secret == "" {
			return fmt.Errorf("secret is required (use --secret or set it in config)")
		}

		token, err := signing.IssueToken(secret, project, subject, ttl)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		if outputFormat(cmd) == "json" {
			out := map[string]interface{}{"token": token, "project_id": project}
			if ttl > 0 {
				out["expires_at"] = time.Now().Add(ttl).UTC().Format(time.RFC3339)
			}
			return output.JSON(out)
		}

		output.Success("Token issued")
		if project != "" {
			output.Info("Project: %s", project)
		} else {
			output.Info("Project: any")
		}
		if ttl > 0 {
			output.Info("Expires: %s", time.Now().Add(ttl).UTC().Format(time.RFC3339))
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		output.Info("\nUse this token with:")
		output.Info("  curl -H 'Authorization: Bearer <token>' --data @event.json %s", ingestURL(cmd))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().String("secret", "", "shared jwt secret (overrides config)")
	tokenIssueCmd.Flags().String("project", "", "restrict the token to one project_id")
	tokenIssueCmd.Flags().String("subject", "lensai-cli", "token subject")
	tokenIssueCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
}
