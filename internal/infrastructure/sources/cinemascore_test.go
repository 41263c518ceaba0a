package sources

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

func TestCinemaScoreFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoded := strings.TrimPrefix(r.URL.Path, "/guest/search/title/")
		term, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || string(term) != "Dune: Part Two" {
			t.Errorf("unexpected search term %q (%v)", term, err)
		}
		_, _ = w.Write([]byte(`[
			{"TITLE":"DUNE: PART TWO","YEAR":2024,"GRADE":"A"},
			{"TITLE":"DUNE","YEAR":"2021","GRADE":"A-"},
			{"TITLE":"","YEAR":"2021","GRADE":"B"}
		]`))
	}))
	t.Cleanup(server.Close)

	src := NewCinemaScore("cinemascore", WithBaseURL(server.URL))
	resp, err := src.Fetch(context.Background(), domain.MovieQuery{Title: "Dune: Part Two", Year: 2024})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(resp.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(resp.Candidates))
	}
	if c := resp.Candidates[0]; c.Title != "DUNE: PART TWO" || c.Year != 2024 || c.Value != "A" {
		t.Fatalf("unexpected candidate %+v", c)
	}
	if c := resp.Candidates[1]; c.Year != 2021 || c.Value != "A-" {
		t.Fatalf("unexpected candidate %+v", c)
	}
}

func TestCinemaScoreMalformedPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	t.Cleanup(server.Close)

	src := NewCinemaScore("cinemascore", WithBaseURL(server.URL))
	_, err := src.Fetch(context.Background(), domain.MovieQuery{Title: "Wicked", Year: 2024})
	var pe *domain.ParseError
	if err == nil || !errors.As(err, &pe) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
