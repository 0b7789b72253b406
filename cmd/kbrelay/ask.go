package main

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/kbrelay/internal/relay"
	"github.com/quailyquaily/kbrelay/internal/relayconfig"
	"github.com/quailyquaily/kbrelay/kb"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Send one question to the knowledge base and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := relayconfig.Load(cmd, relayconfig.RequireAPI)
			if err != nil {
				return err
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("question is required")
			}
			client, err := newKBClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			res := client.Send(cmd.Context(), kb.BuildRequest(cfg.Model, nil, query))
			if !res.OK() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), relay.FailureText(res.Failure, cfg.TimeoutSeconds))
				return res.Failure
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	cmd.Flags().String("api-url", "", "Chat completions endpoint (overrides OPENWEB_API_URL).")
	cmd.Flags().String("model", "", "Model name (overrides MODEL_NAME).")
	cmd.Flags().Int("timeout-seconds", 0, "Request timeout in seconds (overrides API_TIMEOUT_SECONDS).")
	return cmd
}
