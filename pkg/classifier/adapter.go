// Package classifier bridges feature extraction and the trained scoring
// model. The model itself is opaque behind the Scorer interface; this package
// owns feature alignment, the decision threshold, and artifact loading.
package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"adwarden/pkg/features"
)

// Verdict is the blocking decision derived from a probability.
type Verdict int

const (
	// Allow lets the query through to the upstream resolver.
	Allow Verdict = iota
	// Block answers the query with a blocked response.
	Block
)

// String returns a human-readable verdict name.
func (v Verdict) String() string {
	if v == Block {
		return "BLOCK"
	}
	return "ALLOW"
}

// Scorer scores a feature row and returns an ad probability in [0,1].
// Implementations are trained offline; a failed invocation must be reported
// through the error, never by a panic.
type Scorer interface {
	Score(values []float64) (float64, error)
}

// Adapter converts feature vectors into the model's input row and applies
// the decision threshold. It is safe for concurrent use; the threshold may
// be adjusted at runtime (config hot reload).
type Adapter struct {
	scorer Scorer
	names  []string

	mu        sync.RWMutex
	threshold float64
}

// NewAdapter creates an adapter around a scorer. featureNames is the column
// ordering the model was trained with, usually loaded from the persisted
// feature-name file.
func NewAdapter(scorer Scorer, featureNames []string, threshold float64) (*Adapter, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}
	if len(featureNames) == 0 {
		return nil, fmt.Errorf("feature name list cannot be empty")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0,1], got %v", threshold)
	}
	return &Adapter{
		scorer:    scorer,
		names:     featureNames,
		threshold: threshold,
	}, nil
}

// Threshold returns the current decision threshold.
func (a *Adapter) Threshold() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.threshold
}

// SetThreshold updates the decision threshold at runtime.
func (a *Adapter) SetThreshold(threshold float64) {
	if threshold < 0 || threshold > 1 {
		return
	}
	a.mu.Lock()
	a.threshold = threshold
	a.mu.Unlock()
}

// FeatureNames returns the model's expected column ordering.
func (a *Adapter) FeatureNames() []string {
	return a.names
}

// Classify aligns the vector to the model's column order and scores it.
// Features the extractor did not produce default to 0; extractor features
// the model does not know are ignored. This lets extractor and model
// versions evolve independently as long as the name overlap is sufficient.
//
// On scorer failure the verdict is Allow (fail-open) and the error is
// returned so the caller can skip caching the decision.
func (a *Adapter) Classify(v features.Vector) (float64, Verdict, error) {
	row := make([]float64, len(a.names))
	for i, name := range a.names {
		row[i] = v[name] // missing names read as 0
	}

	probability, err := a.scorer.Score(row)
	if err != nil {
		return 0, Allow, fmt.Errorf("classifier scoring failed: %w", err)
	}

	if probability >= a.Threshold() {
		return probability, Block, nil
	}
	return probability, Allow, nil
}

// LoadFeatureNames reads the persisted feature ordering, a JSON array of
// strings written at training time.
func LoadFeatureNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature names file: %w", err)
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to parse feature names file: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("feature names file %s contains no names", path)
	}
	return names, nil
}
