package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shopplanner/internal/config"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := newRootCommand(&logger).Execute(); err != nil {
		logger.Fatal().Err(err).Msg("planner failed")
	}
}

func newRootCommand(logger *zerolog.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "planner",
		Short:         "Workshop appointment planner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("PLANNER_CONFIG_PATH"), "path to config.yaml")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
			*logger = logger.Level(level)
		}
		return cfg, nil
	}

	root.AddCommand(newServeCommand(load, logger))
	root.AddCommand(newAgendaCommand(load, logger))
	root.AddCommand(newMoveCommand(load, logger))
	return root
}
