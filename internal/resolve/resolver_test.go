package resolve

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

func words(n int, extra ...string) string {
	pool := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima"}
	return strings.Join(append(append([]string{}, pool[:n]...), extra...), " ")
}

func TestResolveExactTitleAndYear(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())
	candidates := []domain.Candidate{
		{ExternalID: "438631", Title: "Dune", Year: 2021},
		{ExternalID: "693134", Title: "Dune: Part Two", Year: 2024},
	}

	for _, title := range []string{"Dune: Part Two", "Dune Part Two", "dune part two"} {
		m, err := r.Resolve(domain.MovieQuery{Title: title, Year: 2024}, candidates)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", title, err)
		}
		if m.Candidate.ExternalID != "693134" || m.Index != 1 {
			t.Fatalf("%q: picked %+v", title, m.Candidate)
		}
		if m.Confidence != 1.0 || m.Tier != domain.TierExact {
			t.Fatalf("%q: expected exact match at 1.0, got %s at %v", title, m.Tier, m.Confidence)
		}
	}
}

func TestResolveYearWindow(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())
	m, err := r.Resolve(domain.MovieQuery{Title: "Oppenheimer", Year: 2023}, []domain.Candidate{
		{ExternalID: "a", Title: "Oppenheimer", Year: 2022},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Tier != domain.TierYearWindow || m.Confidence != 0.8 {
		t.Fatalf("expected year-window match at 0.8, got %s at %v", m.Tier, m.Confidence)
	}

	_, err = r.Resolve(domain.MovieQuery{Title: "Oppenheimer", Year: 2023}, []domain.Candidate{
		{ExternalID: "a", Title: "Oppenheimer", Year: 2021},
	})
	if !errors.Is(err, domain.ErrNoMatch) {
		t.Fatalf("two years apart must not match, got %v", err)
	}
}

func TestResolveUnknownCandidateYear(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())
	m, err := r.Resolve(domain.MovieQuery{Title: "Civil War", Year: 2024}, []domain.Candidate{
		{ExternalID: "undated", Title: "Civil War"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Tier != domain.TierYearWindow {
		t.Fatalf("an undated candidate cannot be exact, got %s", m.Tier)
	}
}

func TestResolveExactBeatsHigherPopularityWindowMatch(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())
	m, err := r.Resolve(domain.MovieQuery{Title: "Nosferatu", Year: 2024}, []domain.Candidate{
		{ExternalID: "1979", Title: "Nosferatu", Year: 2023, Popularity: 900},
		{ExternalID: "2024", Title: "Nosferatu", Year: 2024, Popularity: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Candidate.ExternalID != "2024" {
		t.Fatalf("expected the exact-year candidate, got %s", m.Candidate.ExternalID)
	}
}

func TestResolveTieBreakOrder(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())
	q := domain.MovieQuery{Title: "Wicked", Year: 2024}

	m, err := r.Resolve(q, []domain.Candidate{
		{ExternalID: "jan", Title: "Wicked", Year: 2024, ReleaseDate: time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), Popularity: 50},
		{ExternalID: "jun", Title: "Wicked", Year: 2024, ReleaseDate: time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC), Popularity: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Candidate.ExternalID != "jun" {
		t.Fatalf("release date nearest mid-year should win, got %s", m.Candidate.ExternalID)
	}

	m, err = r.Resolve(q, []domain.Candidate{
		{ExternalID: "quiet", Title: "Wicked", Year: 2024, Popularity: 1},
		{ExternalID: "loud", Title: "Wicked", Year: 2024, Popularity: 80},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Candidate.ExternalID != "loud" {
		t.Fatalf("popularity should break the tie, got %s", m.Candidate.ExternalID)
	}

	m, err = r.Resolve(q, []domain.Candidate{
		{ExternalID: "first", Title: "Wicked", Year: 2024},
		{ExternalID: "second", Title: "Wicked", Year: 2024},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Candidate.ExternalID != "first" {
		t.Fatalf("provider order should break the final tie, got %s", m.Candidate.ExternalID)
	}
}

func TestResolveSimilarTitle(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())
	q := domain.MovieQuery{Title: words(10), Year: 2024}
	m, err := r.Resolve(q, []domain.Candidate{
		{ExternalID: "close", Title: words(9), Year: 2024},
		{ExternalID: "far", Title: words(5), Year: 2024},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Candidate.ExternalID != "close" || m.Tier != domain.TierSimilar {
		t.Fatalf("unexpected match %+v", m)
	}
	if math.Abs(m.Confidence-0.6*0.9) > 1e-9 {
		t.Fatalf("expected confidence 0.54, got %v", m.Confidence)
	}
	if m.Confidence > 0.6 {
		t.Fatal("similar tier confidence must stay at or below 0.6")
	}
}

func TestResolveNearTieIsAmbiguous(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())
	q := domain.MovieQuery{Title: words(12), Year: 2024}
	// 9/12 = 0.75 against 9/13 ~ 0.69: the runner-up misses the threshold but
	// is still too close to call.
	_, err := r.Resolve(q, []domain.Candidate{
		{ExternalID: "a", Title: words(9), Year: 2024},
		{ExternalID: "b", Title: words(9, "zulu"), Year: 2024},
	})
	var amb *AmbiguityError
	if !errors.As(err, &amb) {
		t.Fatalf("expected ambiguity error, got %v", err)
	}
	if !errors.Is(err, domain.ErrAmbiguousMatch) {
		t.Fatalf("ambiguity error must wrap ErrAmbiguousMatch: %v", err)
	}
	if amb.Best.Candidate.ExternalID != "a" || amb.RunnerUp.Candidate.ExternalID != "b" {
		t.Fatalf("unexpected ambiguity pair %+v", amb)
	}
}

func TestResolveBelowThreshold(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())
	_, err := r.Resolve(domain.MovieQuery{Title: words(10), Year: 2024}, []domain.Candidate{
		{ExternalID: "a", Title: words(5), Year: 2024},
	})
	if !errors.Is(err, domain.ErrNoMatch) {
		t.Fatalf("expected no match, got %v", err)
	}

	_, err = r.Resolve(domain.MovieQuery{Title: "Anything", Year: 2024}, nil)
	if !errors.Is(err, domain.ErrNoMatch) {
		t.Fatalf("expected no match for empty candidates, got %v", err)
	}
}
