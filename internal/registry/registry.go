// Package registry holds the static set of rating providers for a run.
package registry

import (
	"fmt"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/normalize"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

// Descriptor describes one provider: how to fetch it, how to read its scale
// and how much to trust it.
type Descriptor struct {
	ID          string
	Scale       normalize.ScaleSpec
	Weight      float64
	TTL         time.Duration
	MaxInFlight int
	Source      ports.Source
}

// Validate checks the descriptor invariants.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: provider id is empty", domain.ErrConfiguration)
	}
	if d.Source == nil {
		return fmt.Errorf("%w: provider %s has no source", domain.ErrConfiguration, d.ID)
	}
	if d.Source.ID() != d.ID {
		return fmt.Errorf("%w: provider %s wraps source %s", domain.ErrConfiguration, d.ID, d.Source.ID())
	}
	if d.Scale == nil {
		return fmt.Errorf("%w: provider %s has no scale", domain.ErrConfiguration, d.ID)
	}
	if err := d.Scale.Validate(); err != nil {
		return fmt.Errorf("provider %s: %w", d.ID, err)
	}
	if d.Weight <= 0 || d.Weight > 1 {
		return fmt.Errorf("%w: provider %s weight %.2f outside (0,1]", domain.ErrConfiguration, d.ID, d.Weight)
	}
	if d.TTL <= 0 {
		return fmt.Errorf("%w: provider %s ttl must be positive", domain.ErrConfiguration, d.ID)
	}
	if d.MaxInFlight < 0 {
		return fmt.Errorf("%w: provider %s max in-flight is negative", domain.ErrConfiguration, d.ID)
	}
	return nil
}

// Registry keeps providers in registration order. It is read-only after New.
type Registry struct {
	order       []string
	descriptors map[string]Descriptor
}

// New validates descs and builds a registry from them.
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.descriptors[d.ID]; dup {
			return nil, fmt.Errorf("%w: provider %s registered twice", domain.ErrConfiguration, d.ID)
		}
		if d.MaxInFlight == 0 {
			d.MaxInFlight = 1
		}
		r.descriptors[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Resolve returns a provider by id or an error if it is absent.
func (r *Registry) Resolve(id string) (Descriptor, error) {
	if d, ok := r.descriptors[id]; ok {
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("provider %s is not registered", id)
}

// All returns the descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.descriptors[id])
	}
	return out
}

// Len reports how many providers are registered.
func (r *Registry) Len() int {
	return len(r.order)
}

// IDs returns the provider ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}
