// Package inference runs the bundled prediction model for dynamic
// /predict requests. The model is a per-element affine transform loaded
// from a JSON weights file; one loaded model is shared by all workers and
// serialized with a mutex, matching how the runtime underneath treats a
// model session as single-threaded.
package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrDimensionMismatch means the input length does not match the model.
var ErrDimensionMismatch = errors.New("inference: input dimension mismatch")

// Predictor runs one inference over a feature vector.
type Predictor interface {
	Predict(in []float32) ([]float32, error)
}

// LinearModel computes out[i] = in[i]*weight[i] + bias[i].
type LinearModel struct {
	mu      sync.Mutex
	weights []float32
	bias    []float32
}

// modelFile is the on-disk JSON layout of a weights file.
type modelFile struct {
	Weights []float32 `json:"weights"`
	Bias    []float32 `json:"bias"`
}

// NewLinearModel builds a model from weight and bias vectors of equal
// length.
func NewLinearModel(weights, bias []float32) (*LinearModel, error) {
	if len(weights) == 0 || len(weights) != len(bias) {
		return nil, fmt.Errorf("inference: weights/bias lengths %d/%d", len(weights), len(bias))
	}
	m := &LinearModel{
		weights: make([]float32, len(weights)),
		bias:    make([]float32, len(bias)),
	}
	copy(m.weights, weights)
	copy(m.bias, bias)
	return m, nil
}

// DefaultModel is the identity-plus-100 model the server ships with.
func DefaultModel() *LinearModel {
	m, _ := NewLinearModel([]float32{1}, []float32{100})
	return m
}

// LoadModel reads a JSON weights file from disk.
func LoadModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read model: %w", err)
	}
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("inference: parse model %s: %w", path, err)
	}
	return NewLinearModel(mf.Weights, mf.Bias)
}

// Dim returns the model's input dimension.
func (m *LinearModel) Dim() int {
	return len(m.weights)
}

// Predict applies the affine transform. Safe for concurrent callers.
func (m *LinearModel) Predict(in []float32) ([]float32, error) {
	if len(in) != len(m.weights) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(in), len(m.weights))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]float32, len(in))
	for i, x := range in {
		out[i] = x*m.weights[i] + m.bias[i]
	}
	return out, nil
}

// Save writes the model back out as a JSON weights file.
func (m *LinearModel) Save(path string) error {
	m.mu.Lock()
	mf := modelFile{Weights: m.weights, Bias: m.bias}
	m.mu.Unlock()

	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("inference: encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("inference: write model: %w", err)
	}
	return nil
}
