package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

const rtDunePage = `<html><head>
<meta property="og:title" content="Dune: Part Two">
<script type="application/ld+json">{"@type":"Movie","name":"Dune: Part Two","dateCreated":"2024-03-01"}</script>
</head><body>
<script id="media-scorecard-json" type="application/json">
{"audienceScore":{"score":"95","ratingCount":"10,000"},"criticsScore":{"score":92,"reviewCount":300}}
</script>
</body></html>`

const rtOldDunePage = `<html><head>
<script type="application/ld+json">{"@type":"Movie","name":"Dune","dateCreated":"1984-12-14"}</script>
<script type="application/json">{"audienceScore":{"score":"64"},"criticsScore":{"score":"36","reviewCount":"80"}}</script>
</head></html>`

func TestRottenTomatoesMeters(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/m/dune_part_two" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(rtDunePage))
	}))
	t.Cleanup(server.Close)

	critics, _ := NewRottenTomatoes("rt-critics", RTCritics, WithBaseURL(server.URL))
	resp, err := critics.Fetch(context.Background(), domain.MovieQuery{Title: "Dune: Part Two", Year: 2024})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(resp.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(resp.Candidates))
	}
	c := resp.Candidates[0]
	if c.Value != "92" || c.Title != "Dune: Part Two" || c.Year != 2024 || c.ExternalID != "m/dune_part_two" {
		t.Fatalf("unexpected candidate %+v", c)
	}
	if c.ReviewCount == nil || *c.ReviewCount != 300 {
		t.Fatalf("unexpected review count %v", c.ReviewCount)
	}

	audience, _ := NewRottenTomatoes("rt-audience", RTAudience, WithBaseURL(server.URL))
	resp, err = audience.Fetch(context.Background(), domain.MovieQuery{Title: "Dune: Part Two", Year: 2024})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := resp.Candidates[0]; got.Value != "95" || got.ReviewCount == nil || *got.ReviewCount != 10000 {
		t.Fatalf("unexpected audience candidate %+v", got)
	}
}

func TestRottenTomatoesYearSuffixedSlug(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/m/dune":
			_, _ = w.Write([]byte(rtOldDunePage))
		case "/m/dune_2021":
			_, _ = w.Write([]byte(`<script type="application/json">{"audienceScore":{"score":"90"},"criticsScore":{"score":"83","reviewCount":"500"}}</script>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	src, _ := NewRottenTomatoes("rt-critics", RTCritics, WithBaseURL(server.URL))
	resp, err := src.Fetch(context.Background(), domain.MovieQuery{Title: "Dune", Year: 2021})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(resp.Candidates) != 2 {
		t.Fatalf("expected both pages as candidates, got %d", len(resp.Candidates))
	}
	if resp.Candidates[0].Year != 1984 {
		t.Fatalf("plain slug should carry its own year, got %d", resp.Candidates[0].Year)
	}
	if second := resp.Candidates[1]; second.Year != 2021 || second.Title != "Dune" || second.Value != "83" {
		t.Fatalf("year slug should inherit the query, got %+v", second)
	}
}

func TestRottenTomatoesLayoutChangeIsParseError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div class="new-layout">92%</div></body></html>`))
	}))
	t.Cleanup(server.Close)

	src, _ := NewRottenTomatoes("rt-critics", RTCritics, WithBaseURL(server.URL))
	_, err := src.Fetch(context.Background(), domain.MovieQuery{Title: "Wicked", Year: 2024})
	var pe *domain.ParseError
	if !errors.As(err, &pe) || !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent parse error, got %v", err)
	}
}

func TestRottenTomatoesNotFoundIsEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	src, _ := NewRottenTomatoes("rt-critics", RTCritics, WithBaseURL(server.URL))
	resp, err := src.Fetch(context.Background(), domain.MovieQuery{Title: "Unknown Film", Year: 2024})
	if err != nil || len(resp.Candidates) != 0 {
		t.Fatalf("expected empty response, got %v %v", resp, err)
	}
}

func TestRTPaths(t *testing.T) {
	t.Parallel()

	got := rtPaths(domain.MovieQuery{Title: "Dune: Part Two", Year: 2024})
	if len(got) != 2 || got[0] != "m/dune_part_two" || got[1] != "m/dune_part_two_2024" {
		t.Fatalf("unexpected paths %v", got)
	}
	if got := rtPaths(domain.MovieQuery{Title: "Civil War"}); len(got) != 1 {
		t.Fatalf("no year means one path, got %v", got)
	}
}
