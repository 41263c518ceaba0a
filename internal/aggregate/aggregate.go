// Package aggregate combines normalized provider scores into one
// confidence-weighted score per movie.
package aggregate

import (
	"math"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/normalize"
)

// Score bands used by presentation layers.
const (
	BandGreen  = "green"
	BandYellow = "yellow"
	BandOrange = "orange"
	BandRed    = "red"
	BandGray   = "gray"
)

// DefaultMinSources is the Ok-source count below which a result is flagged
// low-confidence.
const DefaultMinSources = 1

// Input is one provider's record together with how to read and trust it.
type Input struct {
	Record      domain.ProviderRecord
	Scale       normalize.ScaleSpec
	Credibility float64
}

// ConfidenceFactor discounts scores backed by few reviews. An unknown count
// is treated as moderate.
func ConfidenceFactor(reviewCount *int) float64 {
	if reviewCount == nil {
		return 0.75
	}
	switch n := *reviewCount; {
	case n < 10:
		return 0.5
	case n < 50:
		return 0.75
	case n < 100:
		return 0.9
	default:
		return 1.0
	}
}

// Aggregate computes the weighted mean over ok inputs. The breakdown lists
// every input in order; non-ok inputs carry NoData and zero weight. With no
// ok input the score is NoData.
func Aggregate(inputs []Input, minSources int) domain.AggregateResult {
	if minSources <= 0 {
		minSources = DefaultMinSources
	}

	result := domain.AggregateResult{Breakdown: make([]domain.BreakdownEntry, 0, len(inputs))}
	var weighted, total float64
	for _, in := range inputs {
		entry := domain.BreakdownEntry{
			ProviderID:  in.Record.ProviderID,
			Status:      in.Record.Status,
			Normalized:  normalize.Record(in.Scale, in.Record),
			Credibility: in.Credibility,
		}
		if value, ok := entry.Normalized.Value(); ok {
			entry.ConfidenceFactor = ConfidenceFactor(in.Record.ReviewCount)
			entry.Weight = in.Credibility * entry.ConfidenceFactor
			if entry.Weight > 0 {
				weighted += value * entry.Weight
				total += entry.Weight
				result.OKSources++
			}
		}
		result.Breakdown = append(result.Breakdown, entry)
	}

	if total > 0 {
		// Rounding can push a mean of perfect scores just past 100.
		result.Score = domain.ScoreOf(math.Min(100, math.Max(0, weighted/total)))
	}
	result.Band = Band(result.Score)
	result.LowConfidence = result.OKSources < minSources
	return result
}

// Band maps a score onto its presentation colour.
func Band(score domain.Score) string {
	value, ok := score.Value()
	switch {
	case !ok:
		return BandGray
	case value >= 75:
		return BandGreen
	case value >= 60:
		return BandYellow
	case value >= 40:
		return BandOrange
	default:
		return BandRed
	}
}
