// Package birdnet runs the BirdNET TensorFlow Lite model locally and exposes
// it as the primary detector and as the embedding source of the fallback path.
package birdnet

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/birdwatch-app/birdwatch-go/internal/conf"
	"github.com/birdwatch-app/birdwatch-go/internal/cpuspec"
	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultSensitivity = 1.0
	DefaultTopN        = 10
)

// Config configures a BirdNET instance.
type Config struct {
	ModelPath          string
	LabelPath          string
	EmbeddingModelPath string  // optional
	Sensitivity        float64 // sigmoid sensitivity, 0.5 to 1.5
	Threads            int     // 0 picks a count from the CPU
	MinConfidence      float64 // predictions below are dropped per segment
	Overlap            float64 // seconds
	TopN               int
}

// ConfigFromSettings maps detector settings onto Config.
func ConfigFromSettings(s *conf.DetectorSettings) Config {
	return Config{
		ModelPath:          s.ModelPath,
		LabelPath:          s.LabelPath,
		EmbeddingModelPath: s.EmbeddingModelPath,
		Sensitivity:        s.Sensitivity,
		Threads:            s.Threads,
		MinConfidence:      s.MinConfidence,
		Overlap:            s.Overlap,
	}
}

// ModelInfo identifies the loaded analysis model.
type ModelInfo struct {
	ID   string
	Path string
}

// BirdNET wraps the analysis interpreter and, when configured, a second
// interpreter producing embeddings.
type BirdNET struct {
	config               Config
	ModelInfo            ModelInfo
	Labels               []Label
	AnalysisInterpreter  *tflite.Interpreter
	EmbeddingInterpreter *tflite.Interpreter
	mu                   sync.Mutex
}

// New loads the labels and models named in cfg.
func New(cfg Config) (*BirdNET, error) {
	if cfg.Sensitivity <= 0 {
		cfg.Sensitivity = DefaultSensitivity
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}

	bn := &BirdNET{
		config:    cfg,
		ModelInfo: ModelInfo{ID: modelID(cfg.ModelPath), Path: cfg.ModelPath},
	}

	labels, err := LoadLabels(cfg.LabelPath)
	if err != nil {
		return nil, err
	}
	bn.Labels = labels

	threads := cpuspec.ResolveThreads(cfg.Threads)

	start := time.Now()
	bn.AnalysisInterpreter, err = newInterpreter(cfg.ModelPath, threads)
	if err != nil {
		return nil, errors.New(fmt.Errorf("analysis model: %w", err)).
			Component("birdnet").
			Category(errors.CategoryModelInit).
			ModelContext(cfg.ModelPath, bn.ModelInfo.ID).
			Timing("model_init", time.Since(start)).
			Build()
	}

	if cfg.EmbeddingModelPath != "" {
		bn.EmbeddingInterpreter, err = newInterpreter(cfg.EmbeddingModelPath, threads)
		if err != nil {
			bn.Delete()
			return nil, errors.New(fmt.Errorf("embedding model: %w", err)).
				Component("birdnet").
				Category(errors.CategoryModelInit).
				ModelContext(cfg.EmbeddingModelPath, "embeddings").
				Timing("model_init", time.Since(start)).
				Build()
		}
	}

	// The interpreters keep their own copy of the model buffers
	runtime.GC()

	if err := bn.checkOutputSize(); err != nil {
		bn.Delete()
		return nil, err
	}

	GetLogger().Info("BirdNET model initialized",
		logger.String("model", bn.ModelInfo.ID),
		logger.Int("labels", len(bn.Labels)),
		logger.Int("threads", threads),
		logger.Bool("embeddings", bn.EmbeddingInterpreter != nil),
		logger.Duration("load_time", time.Since(start)))

	return bn, nil
}

func newInterpreter(path string, threads int) (*tflite.Interpreter, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: model path comes from settings
	if err != nil {
		return nil, err
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("cannot load model %s", filepath.Base(path))
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		return nil, fmt.Errorf("tensor allocation failed")
	}
	return interpreter, nil
}

// checkOutputSize guards against pairing a label file with the wrong model.
func (bn *BirdNET) checkOutputSize() error {
	output := bn.AnalysisInterpreter.GetOutputTensor(0)
	if output == nil {
		return errors.Newf("analysis model has no output tensor").
			Component("birdnet").
			Category(errors.CategoryModelInit).
			ModelContext(bn.ModelInfo.Path, bn.ModelInfo.ID).
			Build()
	}
	classes := output.Dim(output.NumDims() - 1)
	if classes != len(bn.Labels) {
		return errors.Newf("model predicts %d classes but label file has %d entries", classes, len(bn.Labels)).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			ModelContext(bn.ModelInfo.Path, bn.ModelInfo.ID).
			Context("label_path", bn.config.LabelPath).
			Build()
	}
	return nil
}

// Delete releases the interpreters.
func (bn *BirdNET) Delete() {
	bn.mu.Lock()
	defer bn.mu.Unlock()
	if bn.AnalysisInterpreter != nil {
		bn.AnalysisInterpreter.Delete()
		bn.AnalysisInterpreter = nil
	}
	if bn.EmbeddingInterpreter != nil {
		bn.EmbeddingInterpreter.Delete()
		bn.EmbeddingInterpreter = nil
	}
}

// HasEmbeddings reports whether an embedding model is loaded.
func (bn *BirdNET) HasEmbeddings() bool {
	return bn.EmbeddingInterpreter != nil
}

// modelID derives "BirdNET_GLOBAL_6K_V2.4" from the model file name.
func modelID(path string) string {
	name := filepath.Base(path)
	if strings.HasPrefix(name, "BirdNET_") && strings.Contains(name, "_Model_") {
		return strings.SplitN(name, "_Model_", 2)[0]
	}
	return "Custom"
}
