package identify

import (
	"context"
	"fmt"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// FallbackAdapter classifies a recording against the closed local species set.
type FallbackAdapter struct {
	extractor  EmbeddingExtractor
	classifier Classifier
	labels     LabelMap
}

// NewFallbackAdapter creates the adapter. A nil labels map selects DefaultLabels.
func NewFallbackAdapter(extractor EmbeddingExtractor, classifier Classifier, labels LabelMap) *FallbackAdapter {
	if labels == nil {
		labels = DefaultLabels()
	}
	return &FallbackAdapter{extractor: extractor, classifier: classifier, labels: labels}
}

// Classify returns the label of the first segment whose predicted class is in
// the label map, or SpeciesNotIdentified. It never removes the file at path.
func (f *FallbackAdapter) Classify(ctx context.Context, path string) (string, error) {
	embeddings, err := f.extractor.Embeddings(ctx, path)
	if err != nil {
		return "", errors.New(err).
			Component("identify").
			Category(errors.CategoryClassification).
			Context("operation", "extract_embeddings").
			Build()
	}

	for i, vec := range embeddings {
		class, err := f.classifier.Predict(vec)
		if err != nil {
			return "", errors.New(fmt.Errorf("segment %d: %w", i, err)).
				Component("identify").
				Category(errors.CategoryClassification).
				Context("operation", "predict_species").
				Build()
		}
		if name, ok := f.labels[class]; ok {
			GetLogger().Debug("fallback classifier matched",
				logger.Int("segment", i),
				logger.Int("class", class),
				logger.String("species", name))
			return name, nil
		}
	}

	return SpeciesNotIdentified, nil
}
