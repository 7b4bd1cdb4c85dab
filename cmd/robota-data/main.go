// Package main is the entry point for the robota-data command.
package main

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/uom-robota/robota-core/cmd/robota-data/app"
	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/logger"
)

// getLogLevel reads ROBOTA_LOG_LEVEL, falling back to LOG_LEVEL.
func getLogLevel() string {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	return levelStr
}

func main() {
	logger.Initialize(getLogLevel())
	defer logger.Sync()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}
