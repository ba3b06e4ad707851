package contentsync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birdwatch-app/birdwatch-go/internal/analysis"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/httpclient"
)

// Command creates the command that mirrors the content catalog locally.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Download bird sounds and bird maps from object storage",
		Long:  "Mirror the configured catalog objects into the data directory, skipping files already present.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hc := httpclient.New(nil)
			defer hc.Close()

			report, err := analysis.SyncContent(cmd.Context(), settings, hc, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d, skipped %d, failed %d\n",
				len(report.Downloaded), len(report.Skipped), len(report.Failed))
			for _, object := range report.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s\n", object)
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d objects failed to download", len(report.Failed))
			}
			return nil
		},
	}
}
