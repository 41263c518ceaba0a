// Package resolve matches a movie query against the candidates a provider
// returns, tolerating title-spelling drift and regional release-year skew.
package resolve

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

const (
	confidenceExact      = 1.0
	confidenceYearWindow = 0.8
)

// Options tunes the matching tiers.
type Options struct {
	// YearWindow is the tolerated distance in years for tiers 2 and 3.
	YearWindow int
	// SimilarityThreshold is the minimum token Jaccard similarity for tier 3.
	SimilarityThreshold float64
	// SimilarityCap bounds tier-3 confidence, which is SimilarityCap*similarity.
	SimilarityCap float64
	// AmbiguityEpsilon is the minimum confidence gap between the best and the
	// runner-up tier-3 candidate for the best to be accepted.
	AmbiguityEpsilon float64
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		YearWindow:          1,
		SimilarityThreshold: 0.7,
		SimilarityCap:       0.6,
		AmbiguityEpsilon:    0.05,
	}
}

// Match is the selected candidate and how it was selected.
type Match struct {
	Candidate  domain.Candidate
	Index      int
	Tier       domain.MatchTier
	Confidence float64
	Similarity float64
}

// AmbiguityError reports two tier-3 candidates too close to call.
type AmbiguityError struct {
	Best     Match
	RunnerUp Match
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("%s: %q (%.3f) vs %q (%.3f)",
		domain.ErrAmbiguousMatch,
		e.Best.Candidate.Title, e.Best.Confidence,
		e.RunnerUp.Candidate.Title, e.RunnerUp.Confidence)
}

func (e *AmbiguityError) Unwrap() error {
	return domain.ErrAmbiguousMatch
}

// Resolver selects one candidate per query. It is pure and safe for
// concurrent use.
type Resolver struct {
	opts Options
}

// New builds a resolver; zero option fields fall back to defaults.
func New(opts Options) *Resolver {
	def := DefaultOptions()
	if opts.YearWindow <= 0 {
		opts.YearWindow = def.YearWindow
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = def.SimilarityThreshold
	}
	if opts.SimilarityCap <= 0 {
		opts.SimilarityCap = def.SimilarityCap
	}
	if opts.AmbiguityEpsilon <= 0 {
		opts.AmbiguityEpsilon = def.AmbiguityEpsilon
	}
	return &Resolver{opts: opts}
}

// Resolve picks the candidate matching q. It returns an error wrapping
// domain.ErrNoMatch when nothing qualifies and an *AmbiguityError when the
// best tier-3 candidates cannot be separated.
func (r *Resolver) Resolve(q domain.MovieQuery, candidates []domain.Candidate) (Match, error) {
	if len(candidates) == 0 {
		return Match{}, fmt.Errorf("%w: provider returned no candidates", domain.ErrNoMatch)
	}

	queryTokens := TitleTokens(q.Title)
	queryTitle := strings.Join(queryTokens, " ")

	var exact, window, similar []Match
	for idx, cand := range candidates {
		candTokens := TitleTokens(cand.Title)
		sameTitle := queryTitle != "" && strings.Join(candTokens, " ") == queryTitle
		sameYear := q.Year > 0 && cand.Year == q.Year
		nearYear := r.withinWindow(q.Year, cand.Year)

		switch {
		case sameTitle && sameYear:
			exact = append(exact, Match{Candidate: cand, Index: idx, Tier: domain.TierExact, Confidence: confidenceExact, Similarity: 1})
		case sameTitle && nearYear:
			window = append(window, Match{Candidate: cand, Index: idx, Tier: domain.TierYearWindow, Confidence: confidenceYearWindow, Similarity: 1})
		case nearYear:
			sim := Jaccard(queryTokens, candTokens)
			if sim <= 0 {
				continue
			}
			similar = append(similar, Match{
				Candidate:  cand,
				Index:      idx,
				Tier:       domain.TierSimilar,
				Confidence: math.Min(r.opts.SimilarityCap, r.opts.SimilarityCap*sim),
				Similarity: sim,
			})
		}
	}

	if len(exact) > 0 {
		r.rank(q, exact)
		return exact[0], nil
	}
	if len(window) > 0 {
		r.rank(q, window)
		return window[0], nil
	}
	if len(similar) == 0 {
		return Match{}, fmt.Errorf("%w: %d candidates, none within %d year(s) sharing title words", domain.ErrNoMatch, len(candidates), r.opts.YearWindow)
	}

	r.rank(q, similar)
	best := similar[0]
	if best.Similarity < r.opts.SimilarityThreshold {
		return Match{}, fmt.Errorf("%w: best similarity %.2f below %.2f", domain.ErrNoMatch, best.Similarity, r.opts.SimilarityThreshold)
	}
	if len(similar) > 1 {
		runnerUp := similar[1]
		if best.Confidence-runnerUp.Confidence < r.opts.AmbiguityEpsilon {
			return Match{}, &AmbiguityError{Best: best, RunnerUp: runnerUp}
		}
	}
	return best, nil
}

// withinWindow treats an unknown year on either side as compatible.
func (r *Resolver) withinWindow(queryYear, candYear int) bool {
	if queryYear <= 0 || candYear <= 0 {
		return true
	}
	diff := queryYear - candYear
	if diff < 0 {
		diff = -diff
	}
	return diff <= r.opts.YearWindow
}

// rank orders same-tier matches: confidence, then release date nearest the
// query year's midpoint, then popularity or vote count, then provider order.
func (r *Resolver) rank(q domain.MovieQuery, matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if q.Year > 0 {
			da, db := midpointDistance(q.Year, a.Candidate), midpointDistance(q.Year, b.Candidate)
			if da != db {
				return da < db
			}
		}
		if a.Candidate.Popularity != b.Candidate.Popularity {
			return a.Candidate.Popularity > b.Candidate.Popularity
		}
		if ra, rb := reviews(a.Candidate), reviews(b.Candidate); ra != rb {
			return ra > rb
		}
		return a.Index < b.Index
	})
}

func midpointDistance(year int, cand domain.Candidate) time.Duration {
	midpoint := time.Date(year, time.July, 2, 0, 0, 0, 0, time.UTC)
	released := cand.ReleaseDate
	if released.IsZero() {
		if cand.Year <= 0 {
			return time.Duration(math.MaxInt64)
		}
		released = time.Date(cand.Year, time.July, 2, 0, 0, 0, 0, time.UTC)
	}
	d := released.Sub(midpoint)
	if d < 0 {
		d = -d
	}
	return d
}

func reviews(c domain.Candidate) int {
	if c.ReviewCount == nil {
		return 0
	}
	return *c.ReviewCount
}
