package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/reviewdash/cmd/dimensions"
	"github.com/tphakala/reviewdash/cmd/feedback"
	"github.com/tphakala/reviewdash/cmd/ingest"
	"github.com/tphakala/reviewdash/cmd/serve"
	"github.com/tphakala/reviewdash/cmd/sync"
	"github.com/tphakala/reviewdash/internal/buildinfo"
	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/logger"
)

// RootCommand creates and returns the root command. Subcommands receive
// settings by pointer; it is filled in before any of them run.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configFile string
		initConfig string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "reviewdash",
		Short:         "Quality review dashboard backend",
		Version:       buildinfo.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the config file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&initConfig, "init-config", "", "Write a config file with default values to this path and exit")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if initConfig != "" {
			if err := conf.WriteDefaultConfig(initConfig); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", initConfig)
			return nil
		}
		return cmd.Help()
	}

	rootCmd.AddCommand(
		sync.Command(settings),
		ingest.Command(settings),
		feedback.Command(settings),
		dimensions.Command(settings),
		serve.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd == rootCmd {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		if central, err = initLogging(settings); err != nil {
			return err
		}

		if err := errors.InitSentry(settings.Telemetry.SentryDSN, settings.Telemetry.Environment, buildinfo.Current().Release()); err != nil {
			logger.Global().Module("main").Warn("error reporting disabled", logger.Error(err))
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		errors.FlushTelemetry(2 * time.Second)
		if central != nil {
			return central.Close()
		}
		return nil
	}

	return rootCmd
}

// initLogging installs the configured logger as the global one.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
		if cfg.Pipeline != nil {
			pipeline := *cfg.Pipeline
			pipeline.Level = "debug"
			cfg.Pipeline = &pipeline
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	central.Module("main").Info("starting reviewdash",
		logger.String("version", buildinfo.Current().GetVersion()),
		logger.String("build_date", buildinfo.Current().GetBuildDate()),
		logger.Bool("debug", settings.Debug))
	return central, nil
}
