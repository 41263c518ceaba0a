package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/darthrootbeer/movie-heat/internal/app"
	"github.com/darthrootbeer/movie-heat/internal/config"
	"github.com/darthrootbeer/movie-heat/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cfg config.Config) *slog.Logger {
	level := cfg.Logging.Level
	if c.logLevelFlag != nil && *c.logLevelFlag != "" {
		level = *c.logLevelFlag
	}
	return logging.NewWithOptions(logging.Options{Level: level, Format: cfg.Logging.Format})
}

// application loads configuration and wires the engine for one command.
func (c *commandContext) application(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, c.logger(cfg))
}

// release closes application once its command is done. A close failure is
// logged so it can run deferred.
func (c *commandContext) release(application io.Closer) {
	cfg, _ := c.ensureConfig()
	closeApplication(application, c.logger(cfg))
}

func closeApplication(application io.Closer, logger *slog.Logger) {
	if err := application.Close(); err != nil {
		logger.Error("close application", "error", err)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "movieheat",
		Short:         "Resolve movies across rating providers and aggregate their scores",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $MOVIEHEAT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newLatestCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))

	return rootCmd
}
