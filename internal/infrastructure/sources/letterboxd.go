package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gosimple/slug"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

const letterboxdBaseURL = "https://letterboxd.com"

var (
	outOfFiveExpr = regexp.MustCompile(`^([\d.]+) out of 5`)
	titleYearExpr = regexp.MustCompile(`^(.*?)\s*\((\d{4})\)\s*$`)
)

// Letterboxd scrapes the film page for its average star rating.
type Letterboxd struct {
	id   string
	http httpConfig
}

var _ ports.Source = (*Letterboxd)(nil)

// NewLetterboxd builds the scraping source.
func NewLetterboxd(id string, opts ...Option) *Letterboxd {
	return &Letterboxd{id: id, http: newHTTPConfig(letterboxdBaseURL, opts)}
}

func (l *Letterboxd) ID() string { return l.id }

// Fetch tries /film/{slug}/ and /film/{slug}-{year}/.
func (l *Letterboxd) Fetch(ctx context.Context, q domain.MovieQuery) (*domain.RawResponse, error) {
	resp := &domain.RawResponse{}
	var parseErr error
	for _, path := range letterboxdPaths(q) {
		doc, err := l.http.getDocument(ctx, l.id, l.http.baseURL+"/"+path)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		cand, err := l.parsePage(doc)
		if err != nil {
			parseErr = err
			continue
		}
		cand.ExternalID = path
		if cand.Title == "" {
			cand.Title = q.Title
		}
		resp.Candidates = append(resp.Candidates, cand)
	}
	if len(resp.Candidates) == 0 && parseErr != nil {
		return nil, parseErr
	}
	return resp, nil
}

func letterboxdPaths(q domain.MovieQuery) []string {
	base := slug.Make(q.Title)
	if base == "" {
		return nil
	}
	paths := []string{"film/" + base + "/"}
	if q.Year > 0 {
		paths = append(paths, fmt.Sprintf("film/%s-%d/", base, q.Year))
	}
	return paths
}

type letterboxdLD struct {
	Name            string `json:"name"`
	AggregateRating *struct {
		RatingCount int `json:"ratingCount"`
	} `json:"aggregateRating"`
	ReleasedEvent []struct {
		StartDate string `json:"startDate"`
	} `json:"releasedEvent"`
}

// parsePage reads the rating from the twitter:data2 meta tag. A film page
// without ratings yet has no such tag and yields an empty value.
func (l *Letterboxd) parsePage(doc *goquery.Document) (domain.Candidate, error) {
	var cand domain.Candidate

	ogTitle := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	if ogTitle == "" {
		return cand, &domain.ParseError{Provider: l.id, Detail: "og:title meta not found"}
	}
	cand.Title = ogTitle
	if m := titleYearExpr.FindStringSubmatch(ogTitle); m != nil {
		cand.Title = m[1]
		cand.Year, _ = strconv.Atoi(m[2])
	}

	if data, ok := doc.Find(`meta[name="twitter:data2"]`).Attr("content"); ok {
		m := outOfFiveExpr.FindStringSubmatch(strings.TrimSpace(data))
		if m == nil {
			return cand, &domain.ParseError{Provider: l.id, Detail: fmt.Sprintf("unexpected rating text %q", data)}
		}
		cand.Value = m[1]
	}

	if ld := parseLetterboxdLD(doc); ld != nil {
		if ld.AggregateRating != nil {
			cand.ReviewCount = intPtr(ld.AggregateRating.RatingCount)
		}
		if cand.Year == 0 && len(ld.ReleasedEvent) > 0 {
			cand.Year = parseYear(ld.ReleasedEvent[0].StartDate)
		}
	}
	return cand, nil
}

// parseLetterboxdLD decodes the JSON-LD block, which is wrapped in CDATA
// comment markers.
func parseLetterboxdLD(doc *goquery.Document) *letterboxdLD {
	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "/* <![CDATA[ */")
	raw = strings.TrimSuffix(raw, "/* ]]> */")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var ld letterboxdLD
	if err := json.Unmarshal([]byte(raw), &ld); err != nil {
		return nil
	}
	return &ld
}
