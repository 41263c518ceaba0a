package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

const omdbBaseURL = "https://www.omdbapi.com"

// OMDbField selects which rating an OMDb source reports.
type OMDbField string

const (
	OMDbIMDb       OMDbField = "imdb"
	OMDbMetacritic OMDbField = "metacritic"
)

// OMDb looks a title up on the OMDb API and reports either the IMDb rating
// (with vote count) or the Metascore.
type OMDb struct {
	id     string
	apiKey string
	field  OMDbField
	http   httpConfig
}

var _ ports.Source = (*OMDb)(nil)

type omdbResponse struct {
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Released   string `json:"Released"`
	IMDbID     string `json:"imdbID"`
	IMDbRating string `json:"imdbRating"`
	IMDbVotes  string `json:"imdbVotes"`
	Metascore  string `json:"Metascore"`
}

// NewOMDb builds an OMDb-backed source.
func NewOMDb(id, apiKey string, field OMDbField, opts ...Option) (*OMDb, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s: omdb api key required", domain.ErrConfiguration, id)
	}
	switch field {
	case OMDbIMDb, OMDbMetacritic:
	default:
		return nil, fmt.Errorf("%w: %s: unknown omdb field %q", domain.ErrConfiguration, id, field)
	}
	return &OMDb{id: id, apiKey: apiKey, field: field, http: newHTTPConfig(omdbBaseURL, opts)}, nil
}

func (o *OMDb) ID() string { return o.id }

// Fetch asks OMDb for the title. OMDb answers with at most one movie; an
// unknown title yields no candidates.
func (o *OMDb) Fetch(ctx context.Context, q domain.MovieQuery) (*domain.RawResponse, error) {
	params := url.Values{}
	params.Set("apikey", o.apiKey)
	params.Set("t", q.Title)
	params.Set("type", "movie")
	if q.Year > 0 {
		params.Set("y", strconv.Itoa(q.Year))
	}

	var payload omdbResponse
	if err := o.http.getJSON(ctx, o.id, o.http.baseURL+"/?"+params.Encode(), &payload); err != nil {
		return nil, err
	}

	if !strings.EqualFold(payload.Response, "True") {
		if strings.Contains(strings.ToLower(payload.Error), "not found") {
			return &domain.RawResponse{}, nil
		}
		return nil, domain.Permanent(o.id, errors.New(strings.TrimSpace("omdb: "+payload.Error)))
	}

	cand := domain.Candidate{
		ExternalID:  payload.IMDbID,
		Title:       payload.Title,
		Year:        parseYear(payload.Year),
		ReleaseDate: parseReleased(payload.Released),
	}
	switch o.field {
	case OMDbIMDb:
		cand.Value = payload.IMDbRating
		if votes, ok := parseVotes(payload.IMDbVotes); ok {
			cand.ReviewCount = intPtr(votes)
		}
	case OMDbMetacritic:
		cand.Value = payload.Metascore
	}
	return &domain.RawResponse{Candidates: []domain.Candidate{cand}}, nil
}

func parseVotes(raw string) (int, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" || strings.EqualFold(raw, "n/a") {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parseReleased(raw string) time.Time {
	t, err := time.Parse("02 Jan 2006", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return t
}
