package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

func TestTMDBFetchReturnsAllCandidates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" || r.URL.Query().Get("query") != "Dune" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"page":1,"results":[
			{"id":438631,"title":"Dune","release_date":"2021-09-15","popularity":120.5,"vote_average":7.8,"vote_count":12000},
			{"id":841,"title":"Dune","release_date":"1984-12-14","popularity":30.1,"vote_average":6.2,"vote_count":3000},
			{"id":9999,"title":"Dune","release_date":"","popularity":0.6,"vote_average":0,"vote_count":0}
		]}`))
	}))
	t.Cleanup(server.Close)

	src, err := NewTMDB("tmdb", "key", "en-US", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	resp, err := src.Fetch(context.Background(), domain.MovieQuery{Title: "Dune", Year: 2021})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(resp.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(resp.Candidates))
	}
	first := resp.Candidates[0]
	if first.ExternalID != "438631" || first.Year != 2021 || first.Value != "7.8" || first.Popularity != 120.5 {
		t.Fatalf("unexpected candidate %+v", first)
	}
	if *first.ReviewCount != 12000 {
		t.Fatalf("unexpected vote count %d", *first.ReviewCount)
	}
	if last := resp.Candidates[2]; last.Value != "" || last.Year != 0 {
		t.Fatalf("unrated candidate should carry no value, got %+v", last)
	}
}

func TestTMDBStatusErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "limited" {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	src, _ := NewTMDB("tmdb", "key", "", WithBaseURL(server.URL))

	_, err := src.Fetch(context.Background(), domain.MovieQuery{Title: "limited"})
	var fe *domain.FetchError
	if !errors.As(err, &fe) || !domain.IsTransient(err) || fe.RetryAfter != 2*time.Second {
		t.Fatalf("expected transient error with retry-after, got %v", err)
	}

	_, err = src.Fetch(context.Background(), domain.MovieQuery{Title: "other"})
	if !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestCatalogLatestReleases(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/discover/movie" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if q.Get("primary_release_date.gte") != "2026-10-12" || q.Get("primary_release_date.lte") != "2026-10-18" {
			t.Errorf("unexpected window %s..%s", q.Get("primary_release_date.gte"), q.Get("primary_release_date.lte"))
		}
		if q.Get("with_release_type") != "2|3" || q.Get("with_runtime.gte") != "40" || q.Get("vote_count.gte") != "5" {
			t.Errorf("unexpected filters %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"results":[
			{"id":1,"title":"Alpha","release_date":"2026-10-17"},
			{"id":2,"title":"","release_date":"2026-10-16"},
			{"id":3,"title":"Bravo","release_date":"2026-10-15"},
			{"id":4,"title":"Charlie","release_date":"2026-10-14"}
		]}`))
	}))
	t.Cleanup(server.Close)

	cat, err := NewCatalog("key", DiscoverOptions{Limit: 2}, WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	now := time.Date(2026, time.October, 19, 15, 30, 0, 0, time.UTC)
	queries, err := cat.LatestReleases(context.Background(), now)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	want := []domain.MovieQuery{{Title: "Alpha", Year: 2026}, {Title: "Bravo", Year: 2026}}
	if len(queries) != len(want) {
		t.Fatalf("expected %d queries, got %v", len(want), queries)
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Fatalf("position %d: expected %v, got %v", i, want[i], queries[i])
		}
	}
}

func TestCatalogDetails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/search/movie":
			if q.Get("query") != "Dune: Part Two" || q.Get("year") != "2024" {
				t.Errorf("unexpected search %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"results":[
				{"id":1,"title":"Dune: Part Two","release_date":"2023-11-01"},
				{"id":693134,"title":"Dune: Part Two","release_date":"2024-02-27"}
			]}`))
		case "/movie/693134":
			if q.Get("append_to_response") != "credits,release_dates" {
				t.Errorf("unexpected details query %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{
				"runtime":167,
				"overview":" Paul unites with the Fremen. ",
				"genres":[{"name":"Science Fiction"},{"name":"Adventure"},{"name":"Drama"},{"name":"Action"}],
				"production_companies":[{"name":"Legendary Pictures"}],
				"credits":{
					"cast":[{"name":"Timothée Chalamet"},{"name":"Zendaya"},{"name":"Rebecca Ferguson"},{"name":"Javier Bardem"},{"name":"Josh Brolin"},{"name":"Austin Butler"}],
					"crew":[{"name":"Hans Zimmer","job":"Original Music Composer"},{"name":"Denis Villeneuve","job":"Director"},{"name":"Jon Spaihts","job":"Screenplay"}]
				},
				"release_dates":{"results":[
					{"iso_3166_1":"GB","release_dates":[{"certification":"12A","type":3}]},
					{"iso_3166_1":"US","release_dates":[{"certification":"","type":1},{"certification":"PG-13","type":3}]}
				]}
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	cat, err := NewCatalog("key", DiscoverOptions{}, WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d, err := cat.Details(context.Background(), domain.MovieQuery{Title: "Dune: Part Two", Year: 2024})
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if d == nil {
		t.Fatal("expected details")
	}
	if d.Director != "Denis Villeneuve" || d.Writer != "Jon Spaihts" || d.Studio != "Legendary Pictures" {
		t.Fatalf("unexpected crew %+v", d)
	}
	if len(d.Cast) != 5 || d.Cast[0] != "Timothée Chalamet" {
		t.Fatalf("expected top five cast, got %v", d.Cast)
	}
	if len(d.Genres) != 3 {
		t.Fatalf("expected three genres, got %v", d.Genres)
	}
	if d.RuntimeMinutes != 167 || d.Certification != "PG-13" || d.Release != domain.ReleaseWide {
		t.Fatalf("unexpected release info %+v", d)
	}
	if d.Overview != "Paul unites with the Fremen." {
		t.Fatalf("unexpected overview %q", d.Overview)
	}
}

func TestCatalogDetailsLimitedAndUnknown(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search/movie" && r.URL.Query().Get("query") == "Nowhere":
			_, _ = w.Write([]byte(`{"results":[]}`))
		case r.URL.Path == "/search/movie":
			_, _ = w.Write([]byte(`{"results":[{"id":42,"title":"Small Film","release_date":"2026-10-10"}]}`))
		case r.URL.Path == "/movie/42":
			_, _ = w.Write([]byte(`{"release_dates":{"results":[{"iso_3166_1":"US","release_dates":[{"certification":"R","type":2}]}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	cat, _ := NewCatalog("key", DiscoverOptions{}, WithBaseURL(server.URL))

	d, err := cat.Details(context.Background(), domain.MovieQuery{Title: "Small Film", Year: 2026})
	if err != nil || d == nil {
		t.Fatalf("details: %+v %v", d, err)
	}
	if d.Release != domain.ReleaseLimited || d.Certification != "R" || d.Director != "" {
		t.Fatalf("unexpected details %+v", d)
	}

	d, err = cat.Details(context.Background(), domain.MovieQuery{Title: "Nowhere", Year: 2026})
	if err != nil || d != nil {
		t.Fatalf("expected no details for an unknown movie, got %+v %v", d, err)
	}
}
