// Package fetch runs provider fetches concurrently behind a per-key cache,
// collapsing duplicate in-flight requests and retrying transient failures.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
	"github.com/darthrootbeer/movie-heat/internal/registry"
	"github.com/darthrootbeer/movie-heat/internal/resolve"
)

const defaultConcurrency = 8

// Recorder receives fetch telemetry. The zero Orchestrator records nothing.
type Recorder interface {
	CacheLookup(provider string, hit bool)
	FetchAttempt(provider string, outcome string, took time.Duration)
	RecordStatus(provider string, status domain.Status)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string, bool)                   {}
func (nopRecorder) FetchAttempt(string, string, time.Duration) {}
func (nopRecorder) RecordStatus(string, domain.Status)         {}

// Attempt outcomes reported to the Recorder.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
	OutcomeCancelled = "cancelled"
)

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets the telemetry sink.
func WithRecorder(rec Recorder) Option {
	return func(o *Orchestrator) {
		if rec != nil {
			o.recorder = rec
		}
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// WithConcurrency bounds the total number of fetch units running at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithResolver overrides the entity resolver.
func WithResolver(r *resolve.Resolver) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// Orchestrator turns (query, provider) pairs into provider records.
type Orchestrator struct {
	registry    *registry.Registry
	store       ports.RecordStore
	resolver    *resolve.Resolver
	retry       RetryPolicy
	concurrency int
	logger      *slog.Logger
	recorder    Recorder
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error

	flights singleflight.Group
	limits  map[string]*semaphore.Weighted

	mu         sync.Mutex
	inflight   map[string]*flight
	generation uint64
}

// flight is one shared fetch and the callers waiting on it. Its context
// outlives any single waiter and is cancelled when the last one leaves.
type flight struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New builds an orchestrator over reg. A nil store falls back to an
// in-memory cache scoped to the orchestrator.
func New(reg *registry.Registry, store ports.RecordStore, opts ...Option) *Orchestrator {
	if store == nil {
		store = NewMemoryStore()
	}
	o := &Orchestrator{
		registry:    reg,
		store:       store,
		resolver:    resolve.New(resolve.DefaultOptions()),
		retry:       DefaultRetryPolicy(),
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		recorder:    nopRecorder{},
		now:         time.Now,
		sleep:       sleepWithContext,
		limits:      map[string]*semaphore.Weighted{},
		inflight:    map[string]*flight{},
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, d := range reg.All() {
		o.limits[d.ID] = semaphore.NewWeighted(int64(d.MaxInFlight))
	}
	return o
}

// Result holds the records for one query, one per provider in registry order.
type Result struct {
	Query   domain.MovieQuery
	Key     domain.MovieKey
	Records []domain.ProviderRecord
}

// FetchBatch fetches every provider for every query. It never fails: a
// provider that cannot be fetched yields a record with status failed. When
// ctx ends, unfinished units are reported as failed.
func (o *Orchestrator) FetchBatch(ctx context.Context, queries []domain.MovieQuery) []Result {
	descs := o.registry.All()
	results := make([]Result, len(queries))
	for i, q := range queries {
		results[i] = Result{
			Query:   q,
			Key:     resolve.Key(q),
			Records: make([]domain.ProviderRecord, len(descs)),
		}
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i := range queries {
		for j := range descs {
			g.Go(func() error {
				results[i].Records[j] = o.Fetch(ctx, queries[i], descs[j])
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

// Fetch returns the record for q from one provider, serving fresh cache
// entries without network access and sharing in-flight fetches for the same
// key. A caller leaves when its own ctx ends; the shared fetch keeps running
// until no caller waits on it.
func (o *Orchestrator) Fetch(ctx context.Context, q domain.MovieQuery, desc registry.Descriptor) domain.ProviderRecord {
	key := domain.RecordKey{ProviderID: desc.ID, Movie: resolve.Key(q)}
	if err := ctx.Err(); err != nil {
		return o.failed(desc, err)
	}
	if rec, ok := o.cached(ctx, key); ok {
		o.recorder.RecordStatus(desc.ID, rec.Status)
		return rec
	}

	f := o.join(ctx, key.String())
	defer o.leave(key.String(), f)

	ch := o.flights.DoChan(f.id, func() (any, error) {
		if rec, ok := o.cached(f.ctx, key); ok {
			return rec, nil
		}
		rec := o.fetchWithRetry(f.ctx, q, desc, key)
		if rec.Status != domain.StatusFailed {
			if err := o.store.Set(context.WithoutCancel(f.ctx), key, rec, rec.FetchedAt.Add(desc.TTL)); err != nil {
				o.logger.Warn("cache write failed", "provider", desc.ID, "movie_key", key.Movie.String(), "error", err)
			}
		}
		return rec, nil
	})

	select {
	case res := <-ch:
		rec := res.Val.(domain.ProviderRecord)
		o.recorder.RecordStatus(desc.ID, rec.Status)
		return rec
	case <-ctx.Done():
		rec := o.failed(desc, ctx.Err())
		o.recorder.RecordStatus(desc.ID, rec.Status)
		return rec
	}
}

// join registers a waiter on the flight for key, starting a new flight when
// none is open.
func (o *Orchestrator) join(ctx context.Context, key string) *flight {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.inflight[key]
	if !ok {
		o.generation++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{id: key + "#" + strconv.FormatUint(o.generation, 10), ctx: fctx, cancel: cancel}
		o.inflight[key] = f
	}
	f.waiters++
	return f
}

func (o *Orchestrator) leave(key string, f *flight) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if o.inflight[key] == f {
		delete(o.inflight, key)
	}
	f.cancel()
}

func (o *Orchestrator) cached(ctx context.Context, key domain.RecordKey) (domain.ProviderRecord, bool) {
	now := o.now()
	fresh, err := o.store.HasFresh(ctx, key, now)
	var (
		rec       domain.ProviderRecord
		expiresAt time.Time
	)
	if err == nil && fresh {
		var found bool
		rec, expiresAt, found, err = o.store.Get(ctx, key)
		// The entry may have expired or been replaced between the two reads.
		fresh = found && rec.Status != domain.StatusFailed && now.Before(expiresAt)
	}
	if err != nil {
		o.logger.Warn("cache lookup failed", "provider", key.ProviderID, "movie_key", key.Movie.String(), "error", err)
		return domain.ProviderRecord{}, false
	}
	o.recorder.CacheLookup(key.ProviderID, fresh)
	if fresh {
		o.logger.Debug("cache hit", "provider", key.ProviderID, "movie_key", key.Movie.String(), "expires_at", expiresAt)
	}
	return rec, fresh
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, q domain.MovieQuery, desc registry.Descriptor, key domain.RecordKey) domain.ProviderRecord {
	attempts := o.retry.attempts()
	for attempt := 1; ; attempt++ {
		resp, err := o.callOnce(ctx, q, desc)
		if err == nil {
			return o.buildRecord(q, desc, resp)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.failed(desc, fmt.Errorf("%w: %w", ctxErr, err))
		}

		kind := OutcomePermanent
		if domain.IsTransient(err) {
			kind = OutcomeTransient
		}
		o.logger.Warn("provider fetch failed",
			"provider", desc.ID,
			"movie_key", key.Movie.String(),
			"attempt", attempt,
			"kind", kind,
			"error", err,
		)
		if kind == OutcomePermanent || attempt >= attempts {
			if kind == OutcomeTransient {
				err = fmt.Errorf("failed after %d attempts: %w", attempt, err)
			}
			return o.failed(desc, err)
		}
		if err := o.sleep(ctx, o.retry.Delay(attempt, err)); err != nil {
			return o.failed(desc, err)
		}
	}
}

func (o *Orchestrator) callOnce(ctx context.Context, q domain.MovieQuery, desc registry.Descriptor) (*domain.RawResponse, error) {
	limit := o.limits[desc.ID]
	if limit != nil {
		if err := limit.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer limit.Release(1)
	}

	started := o.now()
	resp, err := desc.Source.Fetch(ctx, q)
	took := o.now().Sub(started)
	if err == nil && resp == nil {
		err = domain.Permanent(desc.ID, errors.New("empty response"))
	}
	if err != nil {
		err = domain.ClassifyError(desc.ID, err)
		outcome := OutcomePermanent
		switch {
		case errors.Is(err, context.Canceled):
			outcome = OutcomeCancelled
		case domain.IsTransient(err):
			outcome = OutcomeTransient
		}
		o.recorder.FetchAttempt(desc.ID, outcome, took)
		return nil, err
	}
	o.recorder.FetchAttempt(desc.ID, OutcomeOK, took)
	return resp, nil
}

// buildRecord resolves the response against q. A resolved candidate whose
// value does not normalize is reported as missing, so an ok record always
// carries a score.
func (o *Orchestrator) buildRecord(q domain.MovieQuery, desc registry.Descriptor, resp *domain.RawResponse) domain.ProviderRecord {
	rec := domain.ProviderRecord{
		ProviderID: desc.ID,
		FetchedAt:  o.now(),
		Match:      domain.Resolution{Candidates: len(resp.Candidates)},
	}

	match, err := o.resolver.Resolve(q, resp.Candidates)
	if err != nil {
		rec.Status = domain.StatusMissing
		rec.Error = err.Error()
		var amb *resolve.AmbiguityError
		if errors.As(err, &amb) {
			rec.Match.Tier = amb.Best.Tier
			rec.Match.Confidence = amb.Best.Confidence
			rec.Match.Unresolved = true
		}
		return rec
	}

	c := match.Candidate
	rec.ExternalID = c.ExternalID
	rec.RawTitle = c.Title
	rec.RawYear = c.Year
	rec.RawValue = c.Value
	rec.ReviewCount = c.ReviewCount
	rec.Match.Tier = match.Tier
	rec.Match.Confidence = match.Confidence
	rec.Status = domain.StatusOK
	if desc.Scale.Normalize(c.Value).IsNoData() {
		rec.Status = domain.StatusMissing
		rec.Error = fmt.Sprintf("%s: no usable score %q", domain.ErrInsufficientData, c.Value)
	}
	return rec
}

func (o *Orchestrator) failed(desc registry.Descriptor, err error) domain.ProviderRecord {
	return domain.ProviderRecord{
		ProviderID: desc.ID,
		FetchedAt:  o.now(),
		Status:     domain.StatusFailed,
		Error:      domain.FailureReason(err),
	}
}
