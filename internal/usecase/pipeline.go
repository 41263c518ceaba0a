package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/darthrootbeer/movie-heat/internal/aggregate"
	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/fetch"
	"github.com/darthrootbeer/movie-heat/internal/ports"
	"github.com/darthrootbeer/movie-heat/internal/registry"
	"github.com/darthrootbeer/movie-heat/internal/resolve"
)

// BatchFetcher produces provider records for a batch of queries.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, queries []domain.MovieQuery) []fetch.Result
}

// BatchObserver is notified when a batch completes.
type BatchObserver interface {
	BatchDone(took time.Duration, movies []domain.CanonicalMovie)
}

// PipelineDeps wires all driven adapters into the resolution pipeline.
type PipelineDeps struct {
	Registry     *registry.Registry
	Fetcher      BatchFetcher
	Catalog      ports.Catalog
	Details      ports.DetailsSource
	Notifier     ports.Notifier
	Observer     BatchObserver
	Logger       *slog.Logger
	BatchTimeout time.Duration
	MinSources   int
	Now          func() time.Time
}

// Pipeline resolves batches of movie queries into canonical movies.
type Pipeline struct {
	registry     *registry.Registry
	fetcher      BatchFetcher
	catalog      ports.Catalog
	details      ports.DetailsSource
	notifier     ports.Notifier
	observer     BatchObserver
	logger       *slog.Logger
	batchTimeout time.Duration
	minSources   int
	now          func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		registry:     deps.Registry,
		fetcher:      deps.Fetcher,
		catalog:      deps.Catalog,
		details:      deps.Details,
		notifier:     deps.Notifier,
		observer:     deps.Observer,
		logger:       deps.Logger,
		batchTimeout: deps.BatchTimeout,
		minSources:   deps.MinSources,
		now:          deps.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.minSources <= 0 {
		p.minSources = aggregate.DefaultMinSources
	}
	return p
}

// Resolve returns one canonical movie per distinct movie key, in order of
// first appearance. Queries that normalize to the same key share one entry.
// Provider failures never abort the batch; they surface as failed records.
func (p *Pipeline) Resolve(ctx context.Context, queries []domain.MovieQuery) []domain.CanonicalMovie {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	started := p.now()

	unique := make([]domain.MovieQuery, 0, len(queries))
	seen := make(map[domain.MovieKey]struct{}, len(queries))
	for _, q := range queries {
		key := resolve.Key(q)
		if _, dup := seen[key]; dup {
			logger.Debug("duplicate query folded", "query", q.String(), "movie_key", key.String())
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, q)
	}
	logger.Info("batch started", "queries", len(queries), "movies", len(unique), "providers", p.registry.Len())

	if p.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.batchTimeout)
		defer cancel()
	}

	results := p.fetcher.FetchBatch(ctx, unique)
	movies := make([]domain.CanonicalMovie, 0, len(results))
	for _, res := range results {
		movie := domain.NewCanonicalMovie(res.Key, res.Query)
		for _, rec := range res.Records {
			movie.PutRecord(rec)
		}
		p.Recompute(movie)
		movies = append(movies, *movie)

		logger.Debug("movie resolved",
			"movie_key", res.Key.String(),
			"score", movie.Aggregate.Score.String(),
			"ok_sources", movie.Aggregate.OKSources,
			"unresolved", len(movie.Unresolved),
		)
	}

	took := p.now().Sub(started)
	if p.observer != nil {
		p.observer.BatchDone(took, movies)
	}
	logger.Info("batch finished", "movies", len(movies), "duration", took)
	return movies
}

// Recompute derives the aggregate and the resolved title/year from the
// movie's current records.
func (p *Pipeline) Recompute(movie *domain.CanonicalMovie) {
	inputs := make([]aggregate.Input, 0, len(movie.Records))
	bestConfidence := -1.0
	for _, rec := range movie.Records {
		desc, err := p.registry.Resolve(rec.ProviderID)
		if err != nil {
			continue
		}
		inputs = append(inputs, aggregate.Input{Record: rec, Scale: desc.Scale, Credibility: desc.Weight})
		if rec.Status == domain.StatusOK && rec.RawTitle != "" && rec.Match.Confidence > bestConfidence {
			bestConfidence = rec.Match.Confidence
			movie.Title = rec.RawTitle
			if rec.RawYear > 0 {
				movie.Year = rec.RawYear
			}
		}
	}
	movie.Aggregate = aggregate.Aggregate(inputs, p.minSources)
}

// ProcessLatest resolves the catalog's latest releases and publishes a digest.
func (p *Pipeline) ProcessLatest(ctx context.Context, now time.Time) ([]domain.CanonicalMovie, error) {
	if p.catalog == nil {
		return nil, fmt.Errorf("%w: no release catalog configured", domain.ErrConfiguration)
	}
	queries, err := p.catalog.LatestReleases(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("latest releases: %w", err)
	}
	if len(queries) == 0 {
		p.logger.Info("catalog returned no releases")
		return nil, nil
	}

	movies := p.Resolve(ctx, queries)
	p.describe(ctx, movies)
	if p.notifier == nil {
		return movies, nil
	}
	if err := p.notifier.PublishDigest(ctx, BuildDigest(movies)); err != nil {
		return movies, fmt.Errorf("publish digest: %w", err)
	}
	return movies, nil
}

const detailsConcurrency = 4

// describe attaches descriptive details to movies. Lookup failures only cost
// the movie its details.
func (p *Pipeline) describe(ctx context.Context, movies []domain.CanonicalMovie) {
	if p.details == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(detailsConcurrency)
	for i := range movies {
		g.Go(func() error {
			m := &movies[i]
			q := domain.MovieQuery{Title: m.Title, Year: m.Year}
			if q.Title == "" {
				q = m.Query
			}
			d, err := p.details.Details(ctx, q)
			if err != nil {
				p.logger.Warn("movie details unavailable", "movie_key", m.Key.String(), "error", err)
				return nil
			}
			m.Details = d
			return nil
		})
	}
	_ = g.Wait()
}

// BuildDigest renders movies as a plain-text message, one line per movie plus
// an indented details line when details are known.
func BuildDigest(movies []domain.CanonicalMovie) string {
	if len(movies) == 0 {
		return ""
	}

	var b strings.Builder
	for _, m := range movies {
		fmt.Fprintf(&b, "- %s", m.Title)
		if m.Year > 0 {
			fmt.Fprintf(&b, " (%d)", m.Year)
		}
		fmt.Fprintf(&b, ": %s [%s] %d/%d sources",
			m.Aggregate.Score, m.Aggregate.Band, m.Aggregate.OKSources, len(m.Records))
		if m.Aggregate.LowConfidence {
			b.WriteString(", low confidence")
		}
		if len(m.Unresolved) > 0 {
			fmt.Fprintf(&b, ", unresolved: %s", strings.Join(m.Unresolved, ", "))
		}
		b.WriteString("\n")
		if line := detailsLine(m.Details); line != "" {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}

func detailsLine(d *domain.MovieDetails) string {
	if d == nil {
		return ""
	}
	var parts []string
	if d.Director != "" {
		parts = append(parts, "dir. "+d.Director)
	}
	if len(d.Cast) > 0 {
		parts = append(parts, strings.Join(d.Cast, ", "))
	}
	if d.RuntimeMinutes > 0 {
		parts = append(parts, fmt.Sprintf("%d min", d.RuntimeMinutes))
	}
	if d.Certification != "" {
		parts = append(parts, d.Certification)
	}
	if d.Release != "" {
		parts = append(parts, d.Release+" release")
	}
	return strings.Join(parts, " | ")
}
