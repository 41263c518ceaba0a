package normalize

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

func TestNumericBoundsAndRange(t *testing.T) {
	t.Parallel()

	scales := []Numeric{{Min: 0, Max: 10}, {Min: 0, Max: 5}, {Min: 0, Max: 100}, {Min: 1, Max: 10}}
	for _, scale := range scales {
		low, ok := scale.Normalize(formatFloat(scale.Min)).Value()
		require.True(t, ok)
		assert.InDelta(t, 0, low, 1e-9)

		high, ok := scale.Normalize(formatFloat(scale.Max)).Value()
		require.True(t, ok)
		assert.InDelta(t, 100, high, 1e-9)

		step := (scale.Max - scale.Min) / 37
		for raw := scale.Min; raw <= scale.Max; raw += step {
			v, ok := scale.Normalize(formatFloat(raw)).Value()
			require.True(t, ok, "raw %v", raw)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestNumericParsing(t *testing.T) {
	t.Parallel()

	imdb := Numeric{Min: 0, Max: 10}
	v, ok := imdb.Normalize("8.5/10").Value()
	require.True(t, ok)
	assert.InDelta(t, 85, v, 1e-9)

	assert.True(t, imdb.Normalize("N/A").IsNoData())
	assert.True(t, imdb.Normalize("").IsNoData())
	assert.True(t, imdb.Normalize("eleven").IsNoData())
	assert.True(t, imdb.Normalize("10.5").IsNoData(), "out of range must not clamp")
	assert.True(t, Numeric{Min: 5, Max: 5}.Normalize("5").IsNoData())
}

func TestPercentage(t *testing.T) {
	t.Parallel()

	v, ok := Percentage{}.Normalize("92%").Value()
	require.True(t, ok)
	assert.InDelta(t, 92, v, 1e-9)

	v, ok = Percentage{}.Normalize("0").Value()
	require.True(t, ok)
	assert.Zero(t, v)

	assert.True(t, Percentage{}.Normalize("-").IsNoData())
	assert.True(t, Percentage{}.Normalize("120").IsNoData())
}

func TestLetterGradeReferenceTable(t *testing.T) {
	t.Parallel()

	want := map[string]float64{
		"A+": 98, "A": 95, "A-": 92,
		"B+": 88, "B": 85, "B-": 82,
		"C+": 78, "C": 75, "C-": 72,
		"D+": 68, "D": 65, "D-": 62,
		"F": 50,
	}
	scale := NewLetterGrade(nil)
	for grade, pct := range want {
		v, ok := scale.Normalize(grade).Value()
		require.True(t, ok, grade)
		assert.Equal(t, pct, v, grade)
	}

	v, _ := scale.Normalize(" a- ").Value()
	assert.Equal(t, 92.0, v)

	for _, unknown := range []string{"A+/A", "E", "AA", "", "5"} {
		assert.True(t, scale.Normalize(unknown).IsNoData(), "grade %q", unknown)
	}
}

func TestRecordNonOKIsNoData(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.Status{domain.StatusMissing, domain.StatusFailed} {
		rec := domain.ProviderRecord{Status: status, RawValue: "8.5"}
		assert.True(t, Record(Numeric{Min: 0, Max: 10}, rec).IsNoData())
	}
	ok := domain.ProviderRecord{Status: domain.StatusOK, RawValue: "A"}
	v, has := Record(NewLetterGrade(nil), ok).Value()
	require.True(t, has)
	assert.Equal(t, 95.0, v)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Numeric{Min: 0, Max: 10}.Validate())
	require.ErrorIs(t, Numeric{Min: 10, Max: 0}.Validate(), domain.ErrConfiguration)
	require.ErrorIs(t, LetterGrade{}.Validate(), domain.ErrConfiguration)
	require.ErrorIs(t, NewLetterGrade(map[string]float64{"A": 120}).Validate(), domain.ErrConfiguration)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
