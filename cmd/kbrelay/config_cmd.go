package main

import (
	"fmt"

	"github.com/quailyquaily/kbrelay/internal/relayconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			need := relayconfig.Requirement(0)
			check, _ := cmd.Flags().GetBool("check")
			if check {
				need = relayconfig.RequireAll
			}
			cfg, err := relayconfig.Load(cmd, need)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, _ = cmd.OutOrStdout().Write(out)
			if !cfg.EmbedColorValid {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning: EMBED_COLOR is invalid; using the default color")
			}
			return nil
		},
	}
	cmd.Flags().Bool("check", false, "Fail when a required value is missing or invalid.")
	return cmd
}
