package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// Output formats for FileAnalysis.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Identifier runs one identification over raw audio bytes.
type Identifier interface {
	Identify(ctx context.Context, data []byte) (identify.Result, identify.Trace)
}

// FileAnalysis identifies the species in one audio file and writes the
// result to w. A failed identification is returned as an error after the
// result has been written.
func FileAnalysis(ctx context.Context, identifier Identifier, path, format string, w io.Writer) error {
	if format == "" {
		format = FormatTable
	}
	if format != FormatTable && format != FormatJSON {
		return fmt.Errorf("unsupported output format %q", format)
	}

	if err := validateAudioFile(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the user's CLI argument
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	start := time.Now()
	res, trace := identifier.Identify(ctx, data)
	elapsed := time.Since(start)
	GetLogger().Debug("file identified",
		logger.String("file", filepath.Base(path)),
		logger.String("trace", trace.String()),
		logger.Duration("duration", elapsed))

	if err := writeResult(w, format, filepath.Base(path), res, elapsed); err != nil {
		return err
	}
	if f, ok := res.(identify.Failure); ok {
		return fmt.Errorf("identification failed: %s", f.Message)
	}
	return nil
}

// validateAudioFile checks that path is a non-empty regular file.
func validateAudioFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error accessing file %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return fmt.Errorf("the path %s is a directory, not a file", filepath.Base(path))
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty (0 bytes)", filepath.Base(path))
	}
	return nil
}

func writeResult(w io.Writer, format, name string, res identify.Result, elapsed time.Duration) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File\t%s\n", name)
	switch r := res.(type) {
	case identify.Identified:
		fmt.Fprintf(tw, "Species\t%s\n", r.ScientificName)
		fmt.Fprintf(tw, "Confidence\t%.3f\n", r.AverageConfidence)
		fmt.Fprintf(tw, "Source\t%s\n", r.Source())
	case identify.FallbackIdentified:
		fmt.Fprintf(tw, "Species\t%s\n", r.ScientificName)
		fmt.Fprintf(tw, "Source\t%s\n", r.Source())
	case identify.Failure:
		fmt.Fprintf(tw, "Error\t%s\n", r.Message)
		if r.Details != "" {
			fmt.Fprintf(tw, "Details\t%s\n", r.Details)
		}
	}
	fmt.Fprintf(tw, "Time\t%s\n", elapsed.Round(time.Millisecond))
	return tw.Flush()
}
