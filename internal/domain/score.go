package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// Score is a canonical 0-100 value or the NoData sentinel. The zero value is
// NoData so an unset score can never be mistaken for 0.
type Score struct {
	value float64
	valid bool
}

// NoData returns the explicit absent score.
func NoData() Score {
	return Score{}
}

// ScoreOf wraps v. Values outside [0,100] or NaN yield NoData.
func ScoreOf(v float64) Score {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
		return NoData()
	}
	return Score{value: v, valid: true}
}

// Value returns the score and whether it carries data.
func (s Score) Value() (float64, bool) {
	return s.value, s.valid
}

// IsNoData reports whether s is the absent sentinel.
func (s Score) IsNoData() bool {
	return !s.valid
}

func (s Score) String() string {
	if !s.valid {
		return "-"
	}
	return strconv.FormatFloat(s.value, 'f', 1, 64)
}

// MarshalJSON renders NoData as null and data as a number.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON accepts null or a number.
func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = NoData()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = ScoreOf(v)
	return nil
}
