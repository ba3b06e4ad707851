// Package cmd wires the birdwatch command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/birdwatch-app/birdwatch-go/cmd/contentsync"
	"github.com/birdwatch-app/birdwatch-go/cmd/identify"
	"github.com/birdwatch-app/birdwatch-go/cmd/serve"
	"github.com/birdwatch-app/birdwatch-go/internal/buildinfo"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "birdwatch",
		Short:         "Bird species identification service",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err) // flag names are static
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		identify.Command(settings),
		contentsync.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		central, err = logger.NewCentralLogger(settings.LoggerConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.SetGlobal(central)
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if central != nil {
			return central.Close()
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config file (default searches ./ and ~/.config/birdwatch)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("backend", conf.DetectorBackendLocal, "Detector backend: local or remote")
	flags.Float64("accept-threshold", conf.DefaultAcceptThreshold, "Mean confidence the primary detector must exceed")
	flags.Float64("discard-threshold", conf.DefaultDiscardThreshold, "Per-segment confidence below which detections are ignored")

	bindings := map[string]string{
		"debug":                           "debug",
		"detector.backend":                "backend",
		"identification.acceptthreshold":  "accept-threshold",
		"identification.discardthreshold": "discard-threshold",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
