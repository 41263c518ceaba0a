package ports

import (
	"context"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

// Source fetches raw candidates for a movie from one rating provider.
type Source interface {
	ID() string
	Fetch(ctx context.Context, q domain.MovieQuery) (*domain.RawResponse, error)
}

// RecordStore persists provider records keyed by (provider, movie key).
type RecordStore interface {
	Get(ctx context.Context, key domain.RecordKey) (rec domain.ProviderRecord, expiresAt time.Time, found bool, err error)
	Set(ctx context.Context, key domain.RecordKey, rec domain.ProviderRecord, expiresAt time.Time) error
	HasFresh(ctx context.Context, key domain.RecordKey, now time.Time) (bool, error)
}

// Catalog lists the movies a batch run should resolve.
type Catalog interface {
	LatestReleases(ctx context.Context, now time.Time) ([]domain.MovieQuery, error)
}

// DetailsSource looks up descriptive metadata for a movie. A nil result with
// a nil error means the movie is unknown.
type DetailsSource interface {
	Details(ctx context.Context, q domain.MovieQuery) (*domain.MovieDetails, error)
}

// Notifier streams selected digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
