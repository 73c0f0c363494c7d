package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/susu3304/falta1/internal/config"
	"github.com/susu3304/falta1/internal/pix"
)

// stubPayCmd plays the PSP for the stub provider: it sends a signed
// settlement webhook for a txid.
func stubPayCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "stub-pay [txid]",
		Short: "Settle a charge issued by the stub PIX provider (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer initLogger(false).Close()
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			secret := os.Getenv("PIX_WEBHOOK_SECRET")
			if secret == "" {
				return fmt.Errorf("PIX_WEBHOOK_SECRET is required")
			}

			body, err := json.Marshal(pix.StubWebhook{TxID: args[0], Status: status})
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, strings.TrimRight(cfg.APIURL, "/")+"/webhooks/pix", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Signature", pix.Sign(secret, body))

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(msg)))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "paid", "paid or expired")
	return cmd
}
