package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LinearModel is the built-in Scorer: a logistic model whose weights are
// exported offline as a JSON artifact. Heavier model families can be plugged
// in by implementing Scorer; the relay only ever sees probabilities.
type LinearModel struct {
	weights []float64
	bias    float64
}

// linearArtifact is the on-disk serialization of a LinearModel. Weights are
// keyed by feature name so the artifact survives reordering of the
// feature-name file.
type linearArtifact struct {
	Bias    float64            `json:"bias"`
	Weights map[string]float64 `json:"weights"`
}

// LoadLinearModel reads a JSON weight artifact and aligns it to the given
// feature ordering. Features without a weight contribute 0.
func LoadLinearModel(path string, featureNames []string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var artifact linearArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if len(artifact.Weights) == 0 {
		return nil, fmt.Errorf("model file %s contains no weights", path)
	}

	weights := make([]float64, len(featureNames))
	for i, name := range featureNames {
		weights[i] = artifact.Weights[name]
	}

	return &LinearModel{
		weights: weights,
		bias:    artifact.Bias,
	}, nil
}

// Score computes sigmoid(w·x + b). The input row must be aligned to the
// feature ordering the model was loaded with.
func (m *LinearModel) Score(values []float64) (float64, error) {
	if len(values) != len(m.weights) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.weights), len(values))
	}

	z := m.bias
	for i, v := range values {
		z += m.weights[i] * v
	}
	return 1 / (1 + math.Exp(-z)), nil
}
