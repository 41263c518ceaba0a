package sources

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

const cinemaScoreBaseURL = "https://webapp.cinemascore.com"

// CinemaScore queries the public title search and reports opening-night
// audience letter grades.
type CinemaScore struct {
	id   string
	http httpConfig
}

var _ ports.Source = (*CinemaScore)(nil)

type cinemaScoreRow struct {
	Title string      `json:"TITLE"`
	Year  looseNumber `json:"YEAR"`
	Grade string      `json:"GRADE"`
}

// NewCinemaScore builds the CinemaScore source.
func NewCinemaScore(id string, opts ...Option) *CinemaScore {
	return &CinemaScore{id: id, http: newHTTPConfig(cinemaScoreBaseURL, opts)}
}

func (c *CinemaScore) ID() string { return c.id }

// Fetch returns every search row as a candidate. The search term travels
// base64-encoded in the path.
func (c *CinemaScore) Fetch(ctx context.Context, q domain.MovieQuery) (*domain.RawResponse, error) {
	term := base64.StdEncoding.EncodeToString([]byte(q.Title))
	endpoint := c.http.baseURL + "/guest/search/title/" + term

	var rows []cinemaScoreRow
	if err := c.http.getJSON(ctx, c.id, endpoint, &rows); err != nil {
		return nil, err
	}

	resp := &domain.RawResponse{Candidates: make([]domain.Candidate, 0, len(rows))}
	for _, row := range rows {
		title := strings.TrimSpace(row.Title)
		if title == "" {
			continue
		}
		resp.Candidates = append(resp.Candidates, domain.Candidate{
			Title: title,
			Year:  parseYear(string(row.Year)),
			Value: strings.TrimSpace(row.Grade),
		})
	}
	return resp, nil
}
