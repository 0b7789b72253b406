package discordcmd

import (
	"fmt"
	"log/slog"

	"github.com/quailyquaily/kbrelay/internal/relayconfig"
	"github.com/quailyquaily/kbrelay/providers/openweb"
	"github.com/spf13/cobra"
)

type Dependencies struct {
	LoggerFromViper func() (*slog.Logger, error)
	LoadConfig      func(cmd *cobra.Command, need relayconfig.Requirement) (relayconfig.Config, error)
	NewKBClient     func(cfg relayconfig.Config) (*openweb.Client, error)
	Version         string
}

var deps Dependencies

func NewCommand(d Dependencies) *cobra.Command {
	deps = d
	return newDiscordCmd()
}

func loggerFromViper() (*slog.Logger, error) {
	if deps.LoggerFromViper == nil {
		return nil, fmt.Errorf("LoggerFromViper dependency missing")
	}
	return deps.LoggerFromViper()
}

func loadConfig(cmd *cobra.Command) (relayconfig.Config, error) {
	if deps.LoadConfig == nil {
		return relayconfig.Config{}, fmt.Errorf("LoadConfig dependency missing")
	}
	return deps.LoadConfig(cmd, relayconfig.RequireAll)
}

func newKBClient(cfg relayconfig.Config) (*openweb.Client, error) {
	if deps.NewKBClient == nil {
		return nil, fmt.Errorf("NewKBClient dependency missing")
	}
	return deps.NewKBClient(cfg)
}
