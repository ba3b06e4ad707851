package birdnet

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
)

// Label is one output class of the analysis model.
type Label struct {
	Raw            string // the line as it appears in the label file
	ScientificName string
	CommonName     string
}

// LoadLabels reads a label file with one "Scientific name_Common name" per line.
func LoadLabels(path string) ([]Label, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: label path comes from settings
	if err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path, 0).
			Build()
	}
	labels, err := ParseLabels(data)
	if err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path, int64(len(data))).
			Build()
	}
	return labels, nil
}

// ParseLabels splits label file contents into labels. Lines are NFC
// normalized so names compare equal regardless of how the file was written.
func ParseLabels(data []byte) ([]Label, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var labels []Label
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(norm.NFC.String(scanner.Text()))
		if line == "" {
			continue
		}
		scientific, common := SplitSpeciesName(line)
		labels = append(labels, Label{Raw: line, ScientificName: scientific, CommonName: common})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file is empty")
	}
	return labels, nil
}

// SplitSpeciesName splits "Scientific_Common[_code]". A line without an
// underscore is taken as the scientific name.
func SplitSpeciesName(name string) (scientific, common string) {
	parts := strings.Split(name, "_")
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(name), ""
}
