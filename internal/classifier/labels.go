package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
)

// LoadLabels reads a YAML mapping of class id to scientific name:
//
//	1: Doliornis sclateri
//	2: Hapalopsittaca melanotis
func LoadLabels(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			FileContext(path, 0).
			Build()
	}
	return ParseLabels(data)
}

// ParseLabels decodes a YAML label table. Empty names are rejected.
func ParseLabels(data []byte) (map[int]string, error) {
	var labels map[int]string
	if err := yaml.Unmarshal(data, &labels); err != nil {
		return nil, errors.New(fmt.Errorf("decode label table: %w", err)).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	if len(labels) == 0 {
		return nil, errors.Newf("label table is empty").
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	for id, name := range labels {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.Newf("label %d has no species name", id).
				Component("classifier").
				Category(errors.CategoryLabelLoad).
				Build()
		}
		labels[id] = name
	}
	return labels, nil
}
