// Package normalize converts provider-native scores into the canonical 0-100
// scale.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

// ScaleSpec declares how a provider's raw value maps onto 0-100.
type ScaleSpec interface {
	Kind() string
	Normalize(raw string) domain.Score
	Validate() error
}

// Numeric is a linear scale between Min and Max (IMDb 0-10, Letterboxd 0-5).
type Numeric struct {
	Min float64
	Max float64
}

// Percentage is a value already expressed as 0-100.
type Percentage struct{}

// LetterGrade maps school-style grades onto fixed percentages.
type LetterGrade struct {
	Mapping map[string]float64
}

var (
	_ ScaleSpec = Numeric{}
	_ ScaleSpec = Percentage{}
	_ ScaleSpec = LetterGrade{}
)

var defaultGrades = map[string]float64{
	"A+": 98, "A": 95, "A-": 92,
	"B+": 88, "B": 85, "B-": 82,
	"C+": 78, "C": 75, "C-": 72,
	"D+": 68, "D": 65, "D-": 62,
	"F": 50,
}

// DefaultGrades returns a copy of the reference grade table.
func DefaultGrades() map[string]float64 {
	out := make(map[string]float64, len(defaultGrades))
	for k, v := range defaultGrades {
		out[k] = v
	}
	return out
}

// NewLetterGrade builds a letter scale; a nil mapping uses the reference table.
func NewLetterGrade(mapping map[string]float64) LetterGrade {
	if mapping == nil {
		return LetterGrade{Mapping: DefaultGrades()}
	}
	normalized := make(map[string]float64, len(mapping))
	for grade, pct := range mapping {
		normalized[strings.ToUpper(strings.TrimSpace(grade))] = pct
	}
	return LetterGrade{Mapping: normalized}
}

func (n Numeric) Kind() string { return "numeric" }

// Normalize maps raw linearly. "8.5/10" style suffixes are accepted; values
// outside [Min,Max] are NoData rather than clamped.
func (n Numeric) Normalize(raw string) domain.Score {
	if n.Max <= n.Min {
		return domain.NoData()
	}
	value, ok := parseNumber(raw)
	if !ok || value < n.Min || value > n.Max {
		return domain.NoData()
	}
	return domain.ScoreOf((value - n.Min) / (n.Max - n.Min) * 100)
}

func (n Numeric) Validate() error {
	if n.Max <= n.Min {
		return fmt.Errorf("%w: numeric scale max %.2f must exceed min %.2f", domain.ErrConfiguration, n.Max, n.Min)
	}
	return nil
}

func (Percentage) Kind() string { return "percentage" }

func (Percentage) Normalize(raw string) domain.Score {
	value, ok := parseNumber(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if !ok {
		return domain.NoData()
	}
	return domain.ScoreOf(value)
}

func (Percentage) Validate() error { return nil }

func (l LetterGrade) Kind() string { return "letter" }

// Normalize looks the grade up verbatim (case-insensitive). Anything not in the
// table, including composite grades like "A+/A", is NoData.
func (l LetterGrade) Normalize(raw string) domain.Score {
	grade := strings.ToUpper(strings.TrimSpace(raw))
	if grade == "" {
		return domain.NoData()
	}
	pct, ok := l.Mapping[grade]
	if !ok {
		return domain.NoData()
	}
	return domain.ScoreOf(pct)
}

func (l LetterGrade) Validate() error {
	if len(l.Mapping) == 0 {
		return fmt.Errorf("%w: letter grade mapping is empty", domain.ErrConfiguration)
	}
	for grade, pct := range l.Mapping {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%w: grade %s maps to %.1f, outside 0-100", domain.ErrConfiguration, grade, pct)
		}
	}
	return nil
}

// Record normalizes rec under spec. Only records with status ok carry a score.
func Record(spec ScaleSpec, rec domain.ProviderRecord) domain.Score {
	if spec == nil || rec.Status != domain.StatusOK {
		return domain.NoData()
	}
	return spec.Normalize(rec.RawValue)
}

func parseNumber(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = strings.TrimSpace(raw[:idx])
	}
	if raw == "" || strings.EqualFold(raw, "n/a") {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
