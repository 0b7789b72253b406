package discordcmd

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/quailyquaily/kbrelay/internal/channelruntime/discord"
	"github.com/quailyquaily/kbrelay/internal/configutil"
	"github.com/quailyquaily/kbrelay/internal/daemonruntime"
	"github.com/quailyquaily/kbrelay/internal/feedback"
	"github.com/quailyquaily/kbrelay/internal/relay"
	"github.com/quailyquaily/kbrelay/internal/relayconfig"
	"github.com/quailyquaily/kbrelay/internal/relaymetrics"
	"github.com/spf13/cobra"
)

const taskViewSize = 500

func newDiscordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discord",
		Short: "Run the Discord relay bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Configuration problems abort before any connection is made.
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			if !cfg.EmbedColorValid {
				logger.Warn("discord_embed_color_invalid", "fallback", relayconfig.DefaultEmbedColor)
			}

			client, err := newKBClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			ledger, err := feedback.NewLedger(cfg.FeedbackMaxEntries)
			if err != nil {
				return err
			}
			metrics := relaymetrics.New()
			tasks := daemonruntime.NewMemoryStore(taskViewSize)
			drainTimeout := configutil.FlagOrViperDuration(cmd, "drain-timeout", "relay.drain_timeout")

			var (
				botUserID atomic.Value
				ready     atomic.Bool
			)
			botUserID.Store("")

			healthListen := configutil.FlagOrViperString(cmd, "health-listen", "health.listen")
			if healthListen != "" {
				_, err := daemonruntime.StartServer(cmd.Context(), logger, daemonruntime.ServerOptions{
					Listen: healthListen,
					Routes: daemonruntime.RoutesOptions{
						Mode:       "discord",
						Version:    deps.Version,
						AuthToken:  cfg.HealthAuthToken,
						TaskReader: tasks,
						Metrics:    metrics.Handler(),
						Overview: func(context.Context) (map[string]any, error) {
							counts := tasks.Counts()
							byStatus := make(map[string]int, len(counts))
							for status, n := range counts {
								byStatus[string(status)] = n
							}
							return map[string]any{
								"ready":                ready.Load(),
								"bot_user_id":          botUserID.Load(),
								"monitored_channel_id": cfg.MonitoredChannelID,
								"model":                cfg.Model,
								"ledger_entries":       ledger.Len(),
								"tasks":                byStatus,
							}, nil
						},
					},
				})
				if err != nil {
					logger.Warn("discord_health_server_start_error", "addr", healthListen, "error", err.Error())
				}
			}

			renderer := relay.Renderer{
				Color:           cfg.EmbedColor,
				DisplaySources:  cfg.DisplaySources,
				Sources:         relay.NoSources,
				FeedbackEnabled: cfg.FeedbackEnabled,
				TimeoutSeconds:  cfg.TimeoutSeconds,
			}

			logger.Info("discord_config",
				"monitored_channel_id", cfg.MonitoredChannelID,
				"model", cfg.Model,
				"timeout", cfg.Timeout().String(),
				"context_messages", cfg.ContextMessages,
				"display_sources", cfg.DisplaySources,
				"feedback_enabled", cfg.FeedbackEnabled,
				"feedback_max_entries", cfg.FeedbackMaxEntries,
				"max_concurrency", cfg.MaxConcurrency,
			)

			return discord.Run(cmd.Context(), discord.RunOptions{
				Token:          cfg.DiscordToken,
				Logger:         logger,
				MaxConcurrency: cfg.MaxConcurrency,
				DrainTimeout:   drainTimeout,
				Tasks:          tasks,
				Queue:          metrics,
				NewRelay: func(platform relay.Platform, botID string) (*relay.Relay, error) {
					return relay.New(relay.Options{
						Platform:           platform,
						Client:             client,
						Ledger:             ledger,
						Renderer:           renderer,
						Observer:           metrics,
						Logger:             logger,
						MonitoredChannelID: cfg.MonitoredChannelID,
						BotUserID:          botID,
						Model:              cfg.Model,
						ContextMessages:    cfg.ContextMessages,
						PlaceholderText:    cfg.PlaceholderText,
					})
				},
				OnReady: func(_ *relay.Relay, botID string) {
					botUserID.Store(strings.TrimSpace(botID))
					ready.Store(true)
				},
			})
		},
	}

	cmd.Flags().String("monitored-channel-id", "", "Channel to watch (overrides MONITORED_CHANNEL_ID).")
	cmd.Flags().String("api-url", "", "Chat completions endpoint (overrides OPENWEB_API_URL).")
	cmd.Flags().String("model", "", "Model name (overrides MODEL_NAME).")
	cmd.Flags().Int("timeout-seconds", 0, "Knowledge base request timeout in seconds (overrides API_TIMEOUT_SECONDS).")
	cmd.Flags().Int("context-messages", 0, "Prior messages sent as context (overrides CONTEXT_MESSAGES_COUNT).")
	cmd.Flags().Int("max-concurrency", 0, "Max concurrent message handlers.")
	cmd.Flags().Duration("drain-timeout", 30*time.Second, "How long shutdown waits for queued messages.")
	cmd.Flags().String("health-listen", "", "Address for /health, /overview, /tasks and /metrics (empty disables).")

	return cmd
}
