package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

var leadingArticles = map[string]struct{}{
	"the": {},
	"a":   {},
	"an":  {},
}

// NormalizeTitle lowercases, folds accents, strips punctuation, drops a
// leading article and collapses whitespace. "The Dune: Part Two" and
// "Dune Part Two" normalize identically.
func NormalizeTitle(title string) string {
	tokens := TitleTokens(title)
	return strings.Join(tokens, " ")
}

// TitleTokens returns the normalized title split into words.
func TitleTokens(title string) []string {
	folded := foldAccents(strings.TrimSpace(title))
	if folded == "" {
		return nil
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "&", " and ")

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	if len(tokens) > 1 {
		if _, ok := leadingArticles[tokens[0]]; ok {
			tokens = tokens[1:]
		}
	}
	return tokens
}

// Key builds the canonical movie key for q.
func Key(q domain.MovieQuery) domain.MovieKey {
	return domain.MovieKey{Title: NormalizeTitle(q.Title), Year: q.Year}
}

// Jaccard returns |A∩B| / |A∪B| over the distinct tokens of a and b.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, tok := range a {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, tok := range b {
		setB[tok] = struct{}{}
	}
	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
