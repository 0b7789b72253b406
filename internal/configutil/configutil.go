// Package configutil resolves values that may come from a command flag or
// from viper. An explicitly set flag wins.
package configutil

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if flagChanged(cmd, flagName) {
		v, err := cmd.Flags().GetString(flagName)
		if err == nil {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(viper.GetString(viperKey))
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if flagChanged(cmd, flagName) {
		v, err := cmd.Flags().GetInt(flagName)
		if err == nil {
			return v
		}
	}
	return viper.GetInt(viperKey)
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if flagChanged(cmd, flagName) {
		v, err := cmd.Flags().GetBool(flagName)
		if err == nil {
			return v
		}
	}
	return viper.GetBool(viperKey)
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if flagChanged(cmd, flagName) {
		v, err := cmd.Flags().GetDuration(flagName)
		if err == nil {
			return v
		}
	}
	return viper.GetDuration(viperKey)
}
