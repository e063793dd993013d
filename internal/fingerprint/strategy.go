// Package fingerprint enrolls and verifies fingerprint templates.
//
// Matching is pluggable. ExactMatch digests both templates and compares the
// digests; it is the behaviour of simulated and mock sensors. FeatureDistance
// turns a vector distance into a similarity and compares it to a threshold,
// which is what a real feature extractor needs.
package fingerprint

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/roach88/biogate/internal/codec"
	"github.com/roach88/biogate/internal/distance"
	"github.com/roach88/biogate/internal/ir"
)

// Strategy names accepted by StrategyFromConfig.
const (
	StrategyExact    = "exact"
	StrategyDistance = "distance"
)

// DefaultMinSimilarity is the FeatureDistance threshold when none is configured.
const DefaultMinSimilarity = 0.5

// Score is the result of comparing a live template with a stored one.
type Score struct {
	// Similarity is in [0, 1]; 1 means identical.
	Similarity float64

	// Matched is the strategy's decision. Callers must use Matched, not
	// re-derive it from Similarity.
	Matched bool
}

// Strategy compares a stored template with a live one.
type Strategy interface {
	Name() string
	Compare(stored, live ir.FingerprintTemplate) (Score, error)
}

// ExactMatch accepts only templates that encode to the same bytes.
type ExactMatch struct{}

// Name implements Strategy.
func (ExactMatch) Name() string { return StrategyExact }

// Compare implements Strategy.
func (ExactMatch) Compare(stored, live ir.FingerprintTemplate) (Score, error) {
	a, err := digest(stored)
	if err != nil {
		return Score{}, err
	}
	b, err := digest(live)
	if err != nil {
		return Score{}, err
	}
	if subtle.ConstantTimeCompare(a, b) == 1 {
		return Score{Similarity: 1, Matched: true}, nil
	}
	return Score{}, nil
}

func digest(t ir.FingerprintTemplate) ([]byte, error) {
	data, err := codec.EncodeVector(t)
	if err != nil {
		return nil, fmt.Errorf("digest template: %w", err)
	}
	return ir.TemplateDigest(data), nil
}

// FeatureDistance matches templates whose similarity 1/(1+d) exceeds
// MinSimilarity, where d is Metric(stored, live).
type FeatureDistance struct {
	Metric        distance.Func
	MinSimilarity float64
}

// Name implements Strategy.
func (FeatureDistance) Name() string { return StrategyDistance }

// Compare implements Strategy. Templates of different length never match.
func (f FeatureDistance) Compare(stored, live ir.FingerprintTemplate) (Score, error) {
	metric := f.Metric
	if metric == nil {
		metric = distance.Euclidean
	}
	d, err := metric(stored, live)
	if errors.Is(err, distance.ErrDimension) {
		return Score{}, nil
	}
	if err != nil {
		return Score{}, fmt.Errorf("feature distance: %w", err)
	}
	sim := 1 / (1 + d)
	return Score{Similarity: sim, Matched: sim > f.MinSimilarity}, nil
}

// StrategyConfig selects and parameterizes a Strategy.
type StrategyConfig struct {
	Strategy      string
	Metric        string
	MinSimilarity float64
}

// StrategyFromConfig builds the configured Strategy.
// An empty strategy name selects ExactMatch.
func StrategyFromConfig(cfg StrategyConfig) (Strategy, error) {
	switch cfg.Strategy {
	case "", StrategyExact:
		return ExactMatch{}, nil
	case StrategyDistance:
		metric, err := distance.ByName(cfg.Metric)
		if err != nil {
			return nil, fmt.Errorf("fingerprint strategy: %w", err)
		}
		minSim := cfg.MinSimilarity
		if minSim == 0 {
			minSim = DefaultMinSimilarity
		}
		return FeatureDistance{Metric: metric, MinSimilarity: minSim}, nil
	default:
		return nil, fmt.Errorf("fingerprint strategy: unknown strategy %q", cfg.Strategy)
	}
}
