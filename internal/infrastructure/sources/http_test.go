package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	if d, ok := parseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("expected 3s, got %v %v", d, ok)
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("empty header must not parse")
	}
	if _, ok := parseRetryAfter("-1"); ok {
		t.Fatal("negative seconds must not parse")
	}
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	if d, ok := parseRetryAfter(future); !ok || d <= 0 || d > time.Minute {
		t.Fatalf("unexpected http-date delay %v %v", d, ok)
	}
}

func TestParseYear(t *testing.T) {
	t.Parallel()

	cases := map[string]int{"2024": 2024, "2024-03-01": 2024, "2019–2020": 2019, "": 0, "N/A": 0, "abcd": 0}
	for in, want := range cases {
		if got := parseYear(in); got != want {
			t.Errorf("parseYear(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRedactDropsQuery(t *testing.T) {
	t.Parallel()

	if got := redact("https://www.omdbapi.com/?apikey=secret&t=Dune"); got != "https://www.omdbapi.com/" {
		t.Fatalf("unexpected redaction %q", got)
	}
}

func TestGetCancelledContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cfg := newHTTPConfig(server.URL, nil)
	_, err := cfg.get(ctx, "tmdb", server.URL+"/search/movie?api_key=secret")
	if !domain.IsTransient(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected transient deadline error, got %v", err)
	}
	if msg := err.Error(); strings.Contains(msg, "secret") {
		t.Fatalf("error leaks api key: %s", msg)
	}
}
