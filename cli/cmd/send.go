package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lensai/lensai-stack/cli/internal/client"
	"github.com/lensai/lensai-stack/cli/pkg/output"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a usage event",
	Long:  "Send a single usage event to the ingest service. The body is posted as-is so malformed events can be exercised too.",
	Example: `  lensai send --json '{"ts":"2025-01-15T12:34:56Z","project_id":"p1",...}'
  lensai send --file event.json --auth-mode hmac --secret s3cret
  cat event.json | lensai send --file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonData, _ := cmd.Flags().GetString("json")
		file, _ := cmd.Flags().GetString("file")

		body, err := readBody(jsonData, file, cmd.InOrStdin())
		if err != nil {
			return err
		}

		mode, secret := authSettings(cmd)
		opts, err := clientOptions(mode, secret, peekProjectID(body))
		if err != nil {
			return err
		}

		ingestClient := client.NewIngestClient(ingestURL(cmd), opts...)
		resp, err := ingestClient.Send(cmd.Context(), body)
		if err != nil {
			return fmt.Errorf("failed to send event: %w", err)
		}

		if outputFormat(cmd) == "json" {
			if err := output.JSON(map[string]interface{}{
				"status": resp.Status,
				"body":   resp.Body,
			}); err != nil {
				return err
			}
			if !resp.OK() {
				return fmt.Errorf("event rejected: status %d", resp.Status)
			}
			return nil
		}

		if !resp.OK() {
			output.Error("Rejected with status %d", resp.Status)
			output.Info("%s", strings.TrimSpace(resp.Body))
			return fmt.Errorf("event rejected: status %d", resp.Status)
		}
		output.Success("Event accepted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("json", "", "event JSON")
	sendCmd.Flags().StringP("file", "f", "", "read the event from a file (- for stdin)")
	sendCmd.Flags().String("auth-mode", "", "none, hmac or jwt (overrides config)")
	sendCmd.Flags().String("secret", "", "shared secret for hmac or jwt (overrides config)")
}

func readBody(jsonData, file string, stdin io.Reader) ([]byte, error) {
	switch {
	case jsonData != "" && file != "":
		return nil, errors.New("use either --json or --file, not both")
	case jsonData != "":
		return []byte(jsonData), nil
	case file == "-":
		return io.ReadAll(stdin)
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, errors.New("either --json or --file is required")
	}
}

func authSettings(cmd *cobra.Command) (mode, secret string) {
	c := currentConfig()
	mode, secret = c.AuthMode, c.Secret
	if m, _ := cmd.Flags().GetString("auth-mode"); m != "" {
		mode = m
	}
	if s, _ := cmd.Flags().GetString("secret"); s != "" {
		secret = s
	}
	return mode, secret
}

// peekProjectID returns the body's project_id if it has a string one.
// Only the exact key counts, as on the server.
func peekProjectID(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	var id string
	if err := json.Unmarshal(obj["project_id"], &id); err != nil {
		return ""
	}
	return id
}
