package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darthrootbeer/movie-heat/internal/config"
	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/logging"
)

func testConfig(endpoint string) config.Config {
	return config.Config{
		Engine: config.EngineConfig{
			Concurrency:  4,
			BatchTimeout: 10 * time.Second,
			MinSources:   1,
			Retry:        config.RetryConfig{MaxAttempts: 1},
			Matching:     config.MatchingConfig{YearWindow: 1, SimilarityThreshold: 0.7, AmbiguityEpsilon: 0.05},
		},
		Providers: []config.ProviderConfig{
			{ID: "cinemascore", Kind: config.KindCinemaScore, Weight: 0.8, TTL: time.Hour, Endpoint: endpoint},
			{ID: "letterboxd", Kind: config.KindLetterboxd, Weight: 0.7, TTL: time.Hour, Endpoint: endpoint},
		},
		Cache: config.CacheConfig{Backend: config.CacheMemory},
	}
}

func TestResolveEndToEnd(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/guest/search/title/") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"TITLE":"DUNE: PART TWO","YEAR":"2024","GRADE":"A"}]`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a, err := New(context.Background(), testConfig(srv.URL), logging.NewNop(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer a.Close()

	movies := a.Resolve(context.Background(), []domain.MovieQuery{{Title: "Dune: Part Two", Year: 2024}})
	require.Len(t, movies, 1)
	m := movies[0]
	require.Len(t, m.Records, 2)
	assert.Equal(t, domain.StatusOK, m.Records[0].Status)
	assert.Equal(t, domain.StatusMissing, m.Records[1].Status)

	score, ok := m.Aggregate.Score.Value()
	require.True(t, ok)
	assert.InDelta(t, 95.0, score, 1e-9)
	assert.Equal(t, 1, m.Aggregate.OKSources)
	assert.Equal(t, 2, a.Registry().Len())

	n, err := a.PurgeCache(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := testutil.GatherAndCount(a.Gatherer(), "movieheat_batches_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	t.Parallel()

	cfg := testConfig("")
	cfg.Providers = append(cfg.Providers, config.ProviderConfig{ID: "imdb", Kind: config.KindOMDbIMDb, Weight: 1, TTL: time.Hour})

	_, err := New(context.Background(), cfg, logging.NewNop())
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestBuildDescriptorScales(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		config.KindOMDbIMDb:       "numeric",
		config.KindOMDbMetacritic: "numeric",
		config.KindTMDB:           "numeric",
		config.KindRTCritics:      "percentage",
		config.KindRTAudience:     "percentage",
		config.KindLetterboxd:     "numeric",
		config.KindCinemaScore:    "letter",
	}
	for kind, scale := range cases {
		desc, err := buildDescriptor(config.ProviderConfig{ID: kind, Kind: kind, APIKey: "k", Weight: 1, TTL: time.Hour}, "en-US", nil)
		require.NoError(t, err, kind)
		assert.Equal(t, scale, desc.Scale.Kind(), kind)
		assert.Equal(t, kind, desc.Source.ID(), kind)
	}

	_, err := buildDescriptor(config.ProviderConfig{ID: "x", Kind: "imdb-scrape"}, "", nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenStoreSQLite(t *testing.T) {
	t.Parallel()

	store, closer, err := openStore(context.Background(), config.CacheConfig{Backend: config.CacheSQLite, Path: t.TempDir() + "/cache.db"})
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, closer.Close())

	_, _, err = openStore(context.Background(), config.CacheConfig{Backend: "etcd"})
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
