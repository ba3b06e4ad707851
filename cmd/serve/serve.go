package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/birdwatch-app/birdwatch-go/internal/analysis"
	"github.com/birdwatch-app/birdwatch-go/internal/buildinfo"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
)

// Command creates the command that runs the HTTP service.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the identification HTTP service",
		Long:  "Start the HTTP service answering POST /analyze-bird and the content catalog routes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.Serve(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("port", "8000", "Port to listen on")
	cmd.Flags().String("max-upload", "20M", "Maximum upload size")
	cmd.Flags().Bool("mqtt", false, "Publish identifications over MQTT")

	for key, flag := range map[string]string{
		"webserver.port":      "port",
		"webserver.maxupload": "max-upload",
		"mqtt.enabled":        "mqtt",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
