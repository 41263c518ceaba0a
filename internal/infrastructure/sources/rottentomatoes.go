package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gosimple/slug"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

const rtBaseURL = "https://www.rottentomatoes.com"

// RTMeter selects the Rotten Tomatoes score a source reports.
type RTMeter string

const (
	RTCritics  RTMeter = "critics"
	RTAudience RTMeter = "audience"
)

// RottenTomatoes scrapes the movie page and reads the scorecard JSON
// embedded in it.
type RottenTomatoes struct {
	id    string
	meter RTMeter
	http  httpConfig
}

var _ ports.Source = (*RottenTomatoes)(nil)

// NewRottenTomatoes builds a scraping source for one meter.
func NewRottenTomatoes(id string, meter RTMeter, opts ...Option) (*RottenTomatoes, error) {
	switch meter {
	case RTCritics, RTAudience:
	default:
		return nil, fmt.Errorf("%w: %s: unknown rotten tomatoes meter %q", domain.ErrConfiguration, id, meter)
	}
	return &RottenTomatoes{id: id, meter: meter, http: newHTTPConfig(rtBaseURL, opts)}, nil
}

func (r *RottenTomatoes) ID() string { return r.id }

// Fetch tries the plain and the year-suffixed slug. Every page that exists
// becomes a candidate so the resolver can pick by year.
func (r *RottenTomatoes) Fetch(ctx context.Context, q domain.MovieQuery) (*domain.RawResponse, error) {
	resp := &domain.RawResponse{}
	var parseErr error
	for _, path := range rtPaths(q) {
		doc, err := r.http.getDocument(ctx, r.id, r.http.baseURL+"/"+path)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		cand, err := r.parsePage(doc)
		if err != nil {
			parseErr = err
			continue
		}
		cand.ExternalID = path
		if cand.Title == "" {
			cand.Title = q.Title
		}
		if cand.Year == 0 && strings.HasSuffix(path, "_"+strconv.Itoa(q.Year)) {
			cand.Year = q.Year
		}
		resp.Candidates = append(resp.Candidates, cand)
	}
	if len(resp.Candidates) == 0 && parseErr != nil {
		return nil, parseErr
	}
	return resp, nil
}

func rtPaths(q domain.MovieQuery) []string {
	base := strings.ReplaceAll(slug.Make(q.Title), "-", "_")
	if base == "" {
		return nil
	}
	paths := []string{"m/" + base}
	if q.Year > 0 {
		paths = append(paths, fmt.Sprintf("m/%s_%d", base, q.Year))
	}
	return paths
}

type rtMeterJSON struct {
	Score       looseNumber `json:"score"`
	ReviewCount looseNumber `json:"reviewCount"`
	RatingCount looseNumber `json:"ratingCount"`
}

type rtScorecard struct {
	CriticsScore  *rtMeterJSON `json:"criticsScore"`
	AudienceScore *rtMeterJSON `json:"audienceScore"`
}

type rtMovieLD struct {
	Type        string `json:"@type"`
	Name        string `json:"name"`
	DateCreated string `json:"dateCreated"`
}

func (r *RottenTomatoes) parsePage(doc *goquery.Document) (domain.Candidate, error) {
	var (
		cand  domain.Candidate
		card  *rtScorecard
		movie rtMovieLD
	)

	doc.Find(`script[type="application/json"], script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := []byte(strings.TrimSpace(s.Text()))
		if card == nil {
			var sc rtScorecard
			if err := json.Unmarshal(raw, &sc); err == nil && sc.CriticsScore != nil && sc.AudienceScore != nil {
				card = &sc
			}
		}
		if movie.Name == "" {
			var ld rtMovieLD
			if err := json.Unmarshal(raw, &ld); err == nil && ld.Type == "Movie" {
				movie = ld
			}
		}
	})
	if card == nil {
		return cand, &domain.ParseError{Provider: r.id, Detail: "scorecard json not found"}
	}

	meter := card.CriticsScore
	if r.meter == RTAudience {
		meter = card.AudienceScore
	}
	cand.Value = string(meter.Score)
	if n, err := strconv.Atoi(string(meter.ReviewCount)); err == nil {
		cand.ReviewCount = intPtr(n)
	} else if n, err := strconv.Atoi(string(meter.RatingCount)); err == nil {
		cand.ReviewCount = intPtr(n)
	}

	cand.Title = strings.TrimSpace(movie.Name)
	if cand.Title == "" {
		cand.Title = strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	}
	cand.Year = parseYear(movie.DateCreated)
	cand.ReleaseDate = parseDate(movie.DateCreated)
	return cand, nil
}

// looseNumber accepts a JSON number, a numeric string or null.
type looseNumber string

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		*n = ""
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		text = s
	}
	*n = looseNumber(strings.ReplaceAll(strings.TrimSpace(text), ",", ""))
	return nil
}
