package internal

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/lychee-technology/strata"
)

// Adaptive tracker contracts, pinned by tests.
const (
	// executionHistorySize bounds the per-fingerprint ring.
	executionHistorySize = 100
	// minSamplesForOptimal is the observation floor below which a strategy
	// cannot be declared optimal.
	minSamplesForOptimal = 3
)

// Heuristic fallback thresholds for unseen query shapes.
const (
	heuristicParallelRows = 50000
	heuristicSIMDRows     = 1000
	heuristicSIMDPreds    = 2
)

// Recommendation thresholds.
const (
	highImpactElapsedMS  = 100.0
	mediumImpactVariance = 0.5
)

// ExecutionSample is one recorded query outcome.
type ExecutionSample struct {
	Strategy       strata.Strategy
	ElapsedMS      float64
	RowCount       int
	PredicateCount int
}

// shapeStatistics holds the bounded execution history of one query shape.
// Each entry has its own lock; the tracker's outer map is read-mostly.
type shapeStatistics struct {
	mu            sync.Mutex
	ring          [executionHistorySize]ExecutionSample
	size          int
	next          int
	firstStrategy strata.Strategy
}

func (s *shapeStatistics) record(sample ExecutionSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		s.firstStrategy = sample.Strategy
	}
	s.ring[s.next] = sample
	s.next = (s.next + 1) % executionHistorySize
	if s.size < executionHistorySize {
		s.size++
	}
}

// snapshot copies the live ring contents under the entry lock.
func (s *shapeStatistics) snapshot() ([]ExecutionSample, strata.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExecutionSample, s.size)
	copy(out, s.ring[:s.size])
	return out, s.firstStrategy
}

// ShapeStatistics is the read-only derived view of one query shape's history.
type ShapeStatistics struct {
	Fingerprint      uint64
	ExecutionCount   int
	AverageElapsedMS float64
	StddevElapsedMS  float64
	// OptimalStrategy is the strategy with the lowest mean elapsed time
	// among those with at least three observations, or nil when none
	// qualify.
	OptimalStrategy *strata.Strategy
	// HasImproved reports that the learned optimum differs from the
	// first-seen strategy.
	HasImproved bool
}

func deriveStatistics(fp uint64, samples []ExecutionSample, first strata.Strategy) ShapeStatistics {
	out := ShapeStatistics{Fingerprint: fp, ExecutionCount: len(samples)}
	if len(samples) == 0 {
		return out
	}
	var sum, sumSq float64
	counts := make(map[strata.Strategy]int)
	totals := make(map[strata.Strategy]float64)
	for _, s := range samples {
		sum += s.ElapsedMS
		sumSq += s.ElapsedMS * s.ElapsedMS
		counts[s.Strategy]++
		totals[s.Strategy] += s.ElapsedMS
	}
	n := float64(len(samples))
	out.AverageElapsedMS = sum / n
	if variance := sumSq/n - out.AverageElapsedMS*out.AverageElapsedMS; variance > 0 {
		out.StddevElapsedMS = math.Sqrt(variance)
	}

	var best *strata.Strategy
	bestMean := math.Inf(1)
	for _, strat := range []strata.Strategy{strata.StrategySequential, strata.StrategySIMD, strata.StrategyParallel} {
		if counts[strat] < minSamplesForOptimal {
			continue
		}
		mean := totals[strat] / float64(counts[strat])
		if mean < bestMean {
			s := strat
			best, bestMean = &s, mean
		}
	}
	out.OptimalStrategy = best
	out.HasImproved = best != nil && *best != first
	return out
}

// AdaptiveTracker records query outcomes per fingerprint and suggests
// strategies from learned history. A disabled tracker accumulates nothing
// and always falls back to the heuristics. The tracker never fails a query:
// every path degrades to "no suggestion".
type AdaptiveTracker struct {
	mu      sync.RWMutex
	shapes  map[uint64]*shapeStatistics
	enabled bool
}

// NewAdaptiveTracker creates a tracker that starts in the given enabled
// state; SetEnabled toggles it afterwards.
func NewAdaptiveTracker(enabled bool) *AdaptiveTracker {
	return &AdaptiveTracker{
		shapes:  make(map[uint64]*shapeStatistics),
		enabled: enabled,
	}
}

// Enabled reports whether outcomes are being accumulated.
func (t *AdaptiveTracker) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled toggles accumulation. Disabling keeps prior history.
func (t *AdaptiveTracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// RecordExecution records one outcome for the fingerprint. No-op when the
// tracker is disabled.
func (t *AdaptiveTracker) RecordExecution(fingerprint uint64, sample ExecutionSample) {
	t.mu.RLock()
	enabled := t.enabled
	entry := t.shapes[fingerprint]
	t.mu.RUnlock()
	if !enabled {
		return
	}
	if entry == nil {
		t.mu.Lock()
		entry = t.shapes[fingerprint]
		if entry == nil {
			entry = &shapeStatistics{}
			t.shapes[fingerprint] = entry
		}
		t.mu.Unlock()
	}
	entry.record(sample)
}

// Statistics returns the derived view for a fingerprint, or nil when the
// shape has never been recorded.
func (t *AdaptiveTracker) Statistics(fingerprint uint64) *ShapeStatistics {
	t.mu.RLock()
	entry := t.shapes[fingerprint]
	t.mu.RUnlock()
	if entry == nil {
		return nil
	}
	samples, first := entry.snapshot()
	out := deriveStatistics(fingerprint, samples, first)
	return &out
}

// TotalExecutions sums the recorded execution counts over all shapes.
func (t *AdaptiveTracker) TotalExecutions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, entry := range t.shapes {
		entry.mu.Lock()
		total += entry.size
		entry.mu.Unlock()
	}
	return total
}

// SuggestStrategy returns the learned optimal strategy for the fingerprint
// when one exists, otherwise the heuristic choice for the given row and
// predicate counts.
func (t *AdaptiveTracker) SuggestStrategy(fingerprint uint64, rowCount, predicateCount int) strata.Strategy {
	if stats := t.Statistics(fingerprint); stats != nil && stats.OptimalStrategy != nil {
		return *stats.OptimalStrategy
	}
	return HeuristicStrategy(rowCount, predicateCount)
}

// HeuristicStrategy is the static fallback used for unseen query shapes.
func HeuristicStrategy(rowCount, predicateCount int) strata.Strategy {
	switch {
	case rowCount >= heuristicParallelRows:
		return strata.StrategyParallel
	case predicateCount >= heuristicSIMDPreds && rowCount >= heuristicSIMDRows:
		return strata.StrategySIMD
	default:
		return strata.StrategySequential
	}
}

// Recommendations scans every tracked shape and emits advisory records,
// ordered by fingerprint for determinism.
func (t *AdaptiveTracker) Recommendations() []strata.Recommendation {
	t.mu.RLock()
	fingerprints := make([]uint64, 0, len(t.shapes))
	for fp := range t.shapes {
		fingerprints = append(fingerprints, fp)
	}
	t.mu.RUnlock()
	sort.Slice(fingerprints, func(i, j int) bool { return fingerprints[i] < fingerprints[j] })

	var out []strata.Recommendation
	for _, fp := range fingerprints {
		stats := t.Statistics(fp)
		if stats == nil || stats.ExecutionCount == 0 {
			continue
		}
		if stats.AverageElapsedMS > highImpactElapsedMS {
			out = append(out, strata.Recommendation{
				Fingerprint: fp,
				Description: fmt.Sprintf("average elapsed %.1fms: consider Parallel or SIMD execution", stats.AverageElapsedMS),
				Impact:      strata.ImpactHigh,
			})
		}
		if stats.AverageElapsedMS > 0 && stats.StddevElapsedMS/stats.AverageElapsedMS > mediumImpactVariance {
			out = append(out, strata.Recommendation{
				Fingerprint: fp,
				Description: "elapsed time is unstable across executions: strategy choice may be inconsistent",
				Impact:      strata.ImpactMedium,
			})
		}
		if stats.HasImproved {
			out = append(out, strata.Recommendation{
				Fingerprint: fp,
				Description: fmt.Sprintf("current choice %s is learned-optimal for this shape", *stats.OptimalStrategy),
				Impact:      strata.ImpactLow,
			})
		}
	}
	return out
}
