package discordcmd

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/quailyquaily/kbrelay/internal/relayconfig"
	"github.com/quailyquaily/kbrelay/providers/openweb"
	"github.com/spf13/cobra"
)

func TestConfigErrorStopsBeforeConnecting(t *testing.T) {
	clientBuilt := false
	cmd := NewCommand(Dependencies{
		LoggerFromViper: func() (*slog.Logger, error) {
			return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
		},
		LoadConfig: func(*cobra.Command, relayconfig.Requirement) (relayconfig.Config, error) {
			return relayconfig.Config{}, &relayconfig.ConfigError{Problems: []string{"DISCORD_TOKEN is required"}}
		},
		NewKBClient: func(relayconfig.Config) (*openweb.Client, error) {
			clientBuilt = true
			return nil, errors.New("unexpected")
		},
	})
	cmd.SetArgs(nil)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	var cfgErr *relayconfig.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Execute() error = %v, want *ConfigError", err)
	}
	if clientBuilt {
		t.Fatalf("knowledge base client built despite config error")
	}
}

func TestMissingDependencies(t *testing.T) {
	deps = Dependencies{}
	if _, err := loggerFromViper(); err == nil {
		t.Fatalf("loggerFromViper() error = nil")
	}
	if _, err := loadConfig(nil); err == nil {
		t.Fatalf("loadConfig() error = nil")
	}
	if _, err := newKBClient(relayconfig.Config{}); err == nil {
		t.Fatalf("newKBClient() error = nil")
	}
}
