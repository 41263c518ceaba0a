package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

type tmdbResult struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}

type tmdbResponse struct {
	Page         int          `json:"page"`
	Results      []tmdbResult `json:"results"`
	TotalResults int          `json:"total_results"`
}

// TMDB searches The Movie Database and reports vote_average on a 0-10 scale.
type TMDB struct {
	id       string
	apiKey   string
	language string
	http     httpConfig
}

var _ ports.Source = (*TMDB)(nil)

// NewTMDB builds a TMDB search source.
func NewTMDB(id, apiKey, language string, opts ...Option) (*TMDB, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s: tmdb api key required", domain.ErrConfiguration, id)
	}
	return &TMDB{id: id, apiKey: apiKey, language: strings.TrimSpace(language), http: newHTTPConfig(tmdbBaseURL, opts)}, nil
}

func (t *TMDB) ID() string { return t.id }

// Fetch returns every search result as a candidate. Unrated results carry an
// empty value.
func (t *TMDB) Fetch(ctx context.Context, q domain.MovieQuery) (*domain.RawResponse, error) {
	params := url.Values{}
	params.Set("api_key", t.apiKey)
	params.Set("query", q.Title)
	params.Set("include_adult", "false")
	if t.language != "" {
		params.Set("language", t.language)
	}

	var payload tmdbResponse
	if err := t.http.getJSON(ctx, t.id, t.http.baseURL+"/search/movie?"+params.Encode(), &payload); err != nil {
		return nil, err
	}

	resp := &domain.RawResponse{Candidates: make([]domain.Candidate, 0, len(payload.Results))}
	for _, r := range payload.Results {
		resp.Candidates = append(resp.Candidates, tmdbCandidate(r))
	}
	return resp, nil
}

func tmdbCandidate(r tmdbResult) domain.Candidate {
	c := domain.Candidate{
		ExternalID:  strconv.FormatInt(r.ID, 10),
		Title:       r.Title,
		Year:        parseYear(r.ReleaseDate),
		ReleaseDate: parseDate(r.ReleaseDate),
		ReviewCount: intPtr(r.VoteCount),
		Popularity:  r.Popularity,
	}
	if r.VoteCount > 0 {
		c.Value = formatFloat(r.VoteAverage)
	}
	return c
}

// DiscoverOptions filters the latest-releases query.
type DiscoverOptions struct {
	Region       string
	Language     string
	WindowDays   int
	ReleaseTypes string
	MinRuntime   int
	MinVotes     int
	Limit        int
}

// DefaultDiscoverOptions returns theatrical US releases of the past week.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		Region:       "US",
		Language:     "en-US",
		WindowDays:   7,
		ReleaseTypes: "2|3",
		MinRuntime:   40,
		MinVotes:     5,
		Limit:        15,
	}
}

// Catalog lists recent theatrical releases from TMDB's discover endpoint.
type Catalog struct {
	apiKey string
	opts   DiscoverOptions
	http   httpConfig
}

var _ ports.Catalog = (*Catalog)(nil)

// NewCatalog builds the release catalog. Zero option fields use defaults.
func NewCatalog(apiKey string, discover DiscoverOptions, opts ...Option) (*Catalog, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: catalog: tmdb api key required", domain.ErrConfiguration)
	}
	def := DefaultDiscoverOptions()
	if discover.Region == "" {
		discover.Region = def.Region
	}
	if discover.Language == "" {
		discover.Language = def.Language
	}
	if discover.WindowDays <= 0 {
		discover.WindowDays = def.WindowDays
	}
	if discover.ReleaseTypes == "" {
		discover.ReleaseTypes = def.ReleaseTypes
	}
	if discover.MinRuntime <= 0 {
		discover.MinRuntime = def.MinRuntime
	}
	if discover.MinVotes <= 0 {
		discover.MinVotes = def.MinVotes
	}
	if discover.Limit <= 0 {
		discover.Limit = def.Limit
	}
	return &Catalog{apiKey: apiKey, opts: discover, http: newHTTPConfig(tmdbBaseURL, opts)}, nil
}

// ReleaseWindow returns the inclusive date range ending yesterday.
func (c *Catalog) ReleaseWindow(now time.Time) (from, to time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to = today.AddDate(0, 0, -1)
	from = to.AddDate(0, 0, -(c.opts.WindowDays - 1))
	return from, to
}

// LatestReleases returns the most popular releases of the window, most
// popular first.
func (c *Catalog) LatestReleases(ctx context.Context, now time.Time) ([]domain.MovieQuery, error) {
	from, to := c.ReleaseWindow(now)

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("language", c.opts.Language)
	params.Set("region", c.opts.Region)
	params.Set("sort_by", "popularity.desc")
	params.Set("primary_release_date.gte", from.Format("2006-01-02"))
	params.Set("primary_release_date.lte", to.Format("2006-01-02"))
	params.Set("with_release_type", c.opts.ReleaseTypes)
	params.Set("with_runtime.gte", strconv.Itoa(c.opts.MinRuntime))
	params.Set("vote_count.gte", strconv.Itoa(c.opts.MinVotes))
	params.Set("page", "1")

	var payload tmdbResponse
	if err := c.http.getJSON(ctx, "tmdb-discover", c.http.baseURL+"/discover/movie?"+params.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("discover movies: %w", err)
	}

	queries := make([]domain.MovieQuery, 0, c.opts.Limit)
	for _, r := range payload.Results {
		if len(queries) == c.opts.Limit {
			break
		}
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		queries = append(queries, domain.MovieQuery{Title: r.Title, Year: parseYear(r.ReleaseDate)})
	}
	return queries, nil
}

type tmdbName struct {
	Name string `json:"name"`
}

type tmdbDetails struct {
	Runtime             int        `json:"runtime"`
	Overview            string     `json:"overview"`
	Genres              []tmdbName `json:"genres"`
	ProductionCompanies []tmdbName `json:"production_companies"`
	Credits             struct {
		Cast []tmdbName `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
	ReleaseDates struct {
		Results []struct {
			Country      string `json:"iso_3166_1"`
			ReleaseDates []struct {
				Certification string `json:"certification"`
				Type          int    `json:"type"`
			} `json:"release_dates"`
		} `json:"results"`
	} `json:"release_dates"`
}

const (
	detailsCastLimit  = 5
	detailsGenreLimit = 3
	// TMDB release type 3 is theatrical; 1 and 2 are premiere and limited.
	tmdbTheatricalRelease = 3
)

var _ ports.DetailsSource = (*Catalog)(nil)

// Details finds q on TMDB and returns its credits, runtime and the catalog
// region's certification. It returns nil when the search has no match.
func (c *Catalog) Details(ctx context.Context, q domain.MovieQuery) (*domain.MovieDetails, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", q.Title)
	params.Set("language", c.opts.Language)
	params.Set("include_adult", "false")
	if q.Year > 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}

	var search tmdbResponse
	if err := c.http.getJSON(ctx, "tmdb-details", c.http.baseURL+"/search/movie?"+params.Encode(), &search); err != nil {
		return nil, fmt.Errorf("search %s: %w", q, err)
	}
	id, ok := pickDetailsResult(search.Results, q.Year)
	if !ok {
		return nil, nil
	}

	params = url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("language", c.opts.Language)
	params.Set("append_to_response", "credits,release_dates")

	var payload tmdbDetails
	endpoint := c.http.baseURL + "/movie/" + strconv.FormatInt(id, 10) + "?" + params.Encode()
	if err := c.http.getJSON(ctx, "tmdb-details", endpoint, &payload); err != nil {
		return nil, fmt.Errorf("details %s: %w", q, err)
	}
	return movieDetails(payload, c.opts.Region), nil
}

func pickDetailsResult(results []tmdbResult, year int) (int64, bool) {
	for _, r := range results {
		if year == 0 || parseYear(r.ReleaseDate) == year {
			return r.ID, true
		}
	}
	return 0, false
}

func movieDetails(p tmdbDetails, region string) *domain.MovieDetails {
	d := &domain.MovieDetails{
		RuntimeMinutes: p.Runtime,
		Overview:       strings.TrimSpace(p.Overview),
		Release:        domain.ReleaseWide,
	}
	for _, member := range p.Credits.Crew {
		switch {
		case member.Job == "Director" && d.Director == "":
			d.Director = member.Name
		case (member.Job == "Screenplay" || member.Job == "Writer") && d.Writer == "":
			d.Writer = member.Name
		}
	}
	for i, member := range p.Credits.Cast {
		if i == detailsCastLimit {
			break
		}
		d.Cast = append(d.Cast, member.Name)
	}
	for i, g := range p.Genres {
		if i == detailsGenreLimit {
			break
		}
		d.Genres = append(d.Genres, g.Name)
	}
	if len(p.ProductionCompanies) > 0 {
		d.Studio = p.ProductionCompanies[0].Name
	}

	for _, country := range p.ReleaseDates.Results {
		if !strings.EqualFold(country.Country, region) {
			continue
		}
		for _, rd := range country.ReleaseDates {
			if rd.Certification == "" {
				continue
			}
			d.Certification = rd.Certification
			if rd.Type < tmdbTheatricalRelease {
				d.Release = domain.ReleaseLimited
			}
			break
		}
	}
	if d.Certification == "" {
		d.Certification = "NR"
	}
	return d
}
