package identify

import (
	"github.com/spf13/cobra"

	"github.com/birdwatch-app/birdwatch-go/internal/analysis"
	"github.com/birdwatch-app/birdwatch-go/internal/conf"
)

// Command creates the command that identifies the species in one file.
func Command(settings *conf.Settings) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "identify [input.wav]",
		Short: "Identify the bird species in an audio file",
		Long:  "Run the same pipeline as POST /analyze-bird on a local file and print the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := analysis.BuildPipeline(settings)
			if err != nil {
				return err
			}
			defer components.Close()
			return analysis.FileAnalysis(cmd.Context(), components.Pipeline, args[0], format, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", analysis.FormatTable, "Output format: table, json")
	return cmd
}
