package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsLatestReleases(t *testing.T) {
	notifier := &captureNotifier{}
	reg := referenceRegistry(t, answering("rt-critics", "92%", intPtr(300)))
	p := newPipeline(reg, PipelineDeps{
		Catalog:  fakeCatalog{queries: []domain.MovieQuery{{Title: "Wicked", Year: 2024}}},
		Notifier: notifier,
	})
	driver := &manualDriver{}
	s := NewScheduler(driver, p, quietLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if driver.job == nil {
		t.Fatal("expected job to be registered")
	}
	driver.job(time.Now())
	if len(notifier.digests) != 1 {
		t.Fatalf("expected one digest, got %d", len(notifier.digests))
	}
	if err := s.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("stop: %v", err)
	}
}
