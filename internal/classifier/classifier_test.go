package classifier

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoClassModel routes positive first inputs to class 1 and positive second
// inputs to class 2 through a ReLU hidden layer.
func twoClassModel() *MLP {
	return &MLP{
		Classes:          []int{1, 2},
		HiddenActivation: ActivationReLU,
		OutputActivation: ActivationSoftmax,
		Layers: []Layer{
			{Weights: [][]float64{{1, 0}, {0, 1}}, Biases: []float64{0, 0}},
			{Weights: [][]float64{{4, 0}, {0, 4}}, Biases: []float64{0, 0}},
		},
	}
}

func writeModel(t *testing.T, m *MLP) string {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "mlp.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadAndPredict(t *testing.T) {
	t.Parallel()

	m, err := Load(writeModel(t, twoClassModel()))
	require.NoError(t, err)
	assert.Equal(t, 2, m.InputSize())

	class, err := m.Predict([]float32{0.9, 0.1})
	require.NoError(t, err)
	assert.Equal(t, 1, class)

	class, err = m.Predict([]float32{0.0, 2.0})
	require.NoError(t, err)
	assert.Equal(t, 2, class)

	probs, err := m.PredictProba([]float32{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, probs[0], 1e-9)
	assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-9)
}

func TestBinaryLogisticOutput(t *testing.T) {
	t.Parallel()

	m := &MLP{
		Classes:          []int{0, 1},
		HiddenActivation: ActivationIdentity,
		OutputActivation: ActivationLogistic,
		Layers:           []Layer{{Weights: [][]float64{{3}}, Biases: []float64{-1}}},
	}
	require.NoError(t, m.Validate())

	class, err := m.Predict([]float32{1})
	require.NoError(t, err)
	assert.Equal(t, 1, class)

	class, err = m.Predict([]float32{-1})
	require.NoError(t, err)
	assert.Equal(t, 0, class)
}

func TestPredictRejectsWrongDimension(t *testing.T) {
	t.Parallel()

	_, err := twoClassModel().Predict([]float32{1, 2, 3})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*MLP)
	}{
		{"no layers", func(m *MLP) { m.Layers = nil }},
		{"bad hidden", func(m *MLP) { m.HiddenActivation = "swish" }},
		{"softmax hidden", func(m *MLP) { m.HiddenActivation = ActivationSoftmax }},
		{"bad output", func(m *MLP) { m.OutputActivation = ActivationReLU }},
		{"chain mismatch", func(m *MLP) { m.Layers[1].Weights = [][]float64{{1, 0}} }},
		{"row mismatch", func(m *MLP) { m.Layers[0].Weights[1] = []float64{1} }},
		{"class mismatch", func(m *MLP) { m.Classes = []int{1, 2, 3} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := twoClassModel()
			tt.mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestParseLabels(t *testing.T) {
	t.Parallel()

	labels, err := ParseLabels([]byte("1: Doliornis sclateri\n2: ' Hapalopsittaca melanotis '\n"))
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "Doliornis sclateri", 2: "Hapalopsittaca melanotis"}, labels)

	_, err = ParseLabels([]byte("{}"))
	assert.Error(t, err)

	_, err = ParseLabels([]byte("1: ''"))
	assert.Error(t, err)

	_, err = ParseLabels([]byte("one: Doliornis sclateri"))
	assert.Error(t, err)
}

func TestLoadLabelsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("7: Grallaria ruficapilla\n"), 0o600))
	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, "Grallaria ruficapilla", labels[7])
}

func TestPredictProbaMatchesManualForwardPass(t *testing.T) {
	t.Parallel()

	// 3 inputs -> 2 tanh hidden units -> 3 softmax outputs
	m := &MLP{
		Classes:          []int{10, 20, 30},
		HiddenActivation: ActivationTanh,
		OutputActivation: ActivationSoftmax,
		Layers: []Layer{
			{Weights: [][]float64{{0.5, -1}, {2, 0.25}, {-0.75, 1.5}}, Biases: []float64{0.1, -0.2}},
			{Weights: [][]float64{{1, -2, 0.5}, {0.3, 0.7, -1}}, Biases: []float64{0, 0.05, -0.05}},
		},
	}
	require.NoError(t, m.Validate())

	x := []float64{0.2, -0.4, 1}
	h := []float64{
		math.Tanh(0.2*0.5 + -0.4*2 + 1*-0.75 + 0.1),
		math.Tanh(0.2*-1 + -0.4*0.25 + 1*1.5 - 0.2),
	}
	z := []float64{
		h[0]*1 + h[1]*0.3,
		h[0]*-2 + h[1]*0.7 + 0.05,
		h[0]*0.5 + h[1]*-1 - 0.05,
	}
	var sum float64
	for _, v := range z {
		sum += math.Exp(v)
	}

	probs, err := m.PredictProba([]float32{float32(x[0]), float32(x[1]), float32(x[2])})
	require.NoError(t, err)
	require.Len(t, probs, 3)
	for i, v := range z {
		assert.InDelta(t, math.Exp(v)/sum, probs[i], 1e-6)
	}
}

func TestPredictProbaWithoutValidate(t *testing.T) {
	t.Parallel()

	probs, err := twoClassModel().PredictProba([]float32{3, 0})
	require.NoError(t, err)
	assert.Greater(t, probs[0], probs[1])

	_, err = (&MLP{}).PredictProba(nil)
	assert.Error(t, err)
}

func TestValidateRejectsEmptyLayer(t *testing.T) {
	t.Parallel()

	m := twoClassModel()
	m.Layers[1] = Layer{Weights: [][]float64{{}, {}}, Biases: []float64{}}
	assert.Error(t, m.Validate())
}
