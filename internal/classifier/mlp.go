// Package classifier implements the fallback species classifier: a small
// multi-layer perceptron over detector embeddings, trained offline and
// shipped as JSON.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// Supported activations.
const (
	ActivationReLU     = "relu"
	ActivationTanh     = "tanh"
	ActivationLogistic = "logistic"
	ActivationIdentity = "identity"
	ActivationSoftmax  = "softmax"
)

// Layer is a dense layer. Weights are indexed [input][output].
type Layer struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// MLP is a feed-forward network exported from the training notebook.
type MLP struct {
	Classes          []int   `json:"classes"`
	HiddenActivation string  `json:"hidden_activation"`
	OutputActivation string  `json:"output_activation"`
	Layers           []Layer `json:"layers"`

	// weights holds each layer as an inputs x outputs matrix once validated
	weights []*mat.Dense
}

// Load reads and validates a serialized MLP.
func Load(path string) (*MLP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			FileContext(path, 0).
			Build()
	}

	var m MLP
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.New(fmt.Errorf("decode classifier model: %w", err)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Build()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	GetLogger().Info("fallback classifier loaded",
		logger.Int("inputs", m.InputSize()),
		logger.Int("layers", len(m.Layers)),
		logger.Int("classes", len(m.Classes)))
	return &m, nil
}

// InputSize returns the expected embedding length.
func (m *MLP) InputSize() int {
	if len(m.Layers) == 0 {
		return 0
	}
	return len(m.Layers[0].Weights)
}

// Validate checks that layer shapes chain together and activations are known.
func (m *MLP) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Newf(format, args...).
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	if len(m.Layers) == 0 {
		return invalid("classifier model has no layers")
	}
	if !knownActivation(m.HiddenActivation) || m.HiddenActivation == ActivationSoftmax {
		return invalid("invalid hidden activation %q", m.HiddenActivation)
	}
	if m.OutputActivation != ActivationSoftmax && m.OutputActivation != ActivationLogistic {
		return invalid("invalid output activation %q", m.OutputActivation)
	}

	width := len(m.Layers[0].Weights)
	for i, l := range m.Layers {
		if width == 0 || len(l.Biases) == 0 {
			return invalid("layer %d has an empty dimension", i)
		}
		if len(l.Weights) != width {
			return invalid("layer %d expects %d inputs, previous layer has %d outputs", i, len(l.Weights), width)
		}
		for _, row := range l.Weights {
			if len(row) != len(l.Biases) {
				return invalid("layer %d weight row size %d mismatch with %d biases", i, len(row), len(l.Biases))
			}
		}
		width = len(l.Biases)
	}

	// A single logistic output unit is a binary classifier
	outputs := width
	if m.OutputActivation == ActivationLogistic && width == 1 {
		outputs = 2
	}
	if len(m.Classes) != outputs {
		return invalid("model has %d outputs but %d classes", outputs, len(m.Classes))
	}

	m.weights = make([]*mat.Dense, len(m.Layers))
	for i, l := range m.Layers {
		m.weights[i] = l.matrix()
	}
	return nil
}

// matrix packs the row-per-input weights into a dense matrix.
func (l Layer) matrix() *mat.Dense {
	w := mat.NewDense(len(l.Weights), len(l.Biases), nil)
	for i, row := range l.Weights {
		w.SetRow(i, row)
	}
	return w
}

func (m *MLP) layerMatrix(i int) *mat.Dense {
	if len(m.weights) == len(m.Layers) {
		return m.weights[i]
	}
	return m.Layers[i].matrix()
}

// Predict returns the class id with the highest output probability.
func (m *MLP) Predict(vec []float32) (int, error) {
	probs, err := m.PredictProba(vec)
	if err != nil {
		return 0, err
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return m.Classes[best], nil
}

// PredictProba returns per-class probabilities in Classes order.
func (m *MLP) PredictProba(vec []float32) ([]float64, error) {
	if len(vec) == 0 || len(vec) != m.InputSize() {
		return nil, errors.Newf("embedding has %d values, classifier expects %d", len(vec), m.InputSize()).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}

	in := make([]float64, len(vec))
	for i, v := range vec {
		in[i] = float64(v)
	}
	act := mat.NewVecDense(len(in), in)

	last := len(m.Layers) - 1
	for li, l := range m.Layers {
		// next = W^T act + b
		next := mat.NewVecDense(len(l.Biases), nil)
		next.MulVec(m.layerMatrix(li).T(), act)
		next.AddVec(next, mat.NewVecDense(len(l.Biases), l.Biases))
		if li < last {
			applyActivation(m.HiddenActivation, next.RawVector().Data)
		}
		act = next
	}

	out := mat.Col(nil, 0, act)
	switch {
	case m.OutputActivation == ActivationSoftmax:
		softmax(out)
		return out, nil
	case len(out) == 1:
		p := logistic(out[0])
		return []float64{1 - p, p}, nil
	default:
		applyActivation(ActivationLogistic, out)
		return out, nil
	}
}

func knownActivation(name string) bool {
	switch name {
	case ActivationReLU, ActivationTanh, ActivationLogistic, ActivationIdentity, ActivationSoftmax:
		return true
	}
	return false
}

func applyActivation(name string, v []float64) {
	for i, x := range v {
		switch name {
		case ActivationReLU:
			v[i] = max(x, 0)
		case ActivationTanh:
			v[i] = math.Tanh(x)
		case ActivationLogistic:
			v[i] = logistic(x)
		}
	}
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(v []float64) {
	peak := floats.Max(v)
	for i, x := range v {
		v[i] = math.Exp(x - peak)
	}
	floats.Scale(1/floats.Sum(v), v)
}
