// Package registry caches fitted detector sets per (room, metric) key with
// TTL eviction, so repeated detection requests reuse models instead of
// refitting on every call. Concurrent requests for the same missing or
// expired key coalesce onto a single fit.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FlockWatch/internal/domain/models"
	"FlockWatch/internal/domain/repository"
	"FlockWatch/internal/services/detector"
	"FlockWatch/pkg/logger"
)

// ErrFitFailure wraps a failed fit-and-replace attempt. The previous cached
// entry, if any, is retained.
var ErrFitFailure = errors.New("detector fit failed")

// Key identifies one cached detector set.
type Key struct {
	RoomID string
	Metric models.MetricName
}

func (k Key) String() string { return k.RoomID + ":" + string(k.Metric) }

// FittedSet is the atomically-replaced cache value: every model that fit
// successfully, plus the kinds that were skipped for insufficient data.
// Immutable after construction.
type FittedSet struct {
	Models   map[models.DetectorKind]detector.Model
	Skipped  map[models.DetectorKind]error
	FittedAt time.Time
}

type entry struct {
	set *FittedSet
	exp time.Time
}

// pending is the shared handle concurrent callers wait on while one fit for
// the key is in flight.
type pending struct {
	done chan struct{}
	set  *FittedSet
	err  error
}

// Registry owns fitted detector instances keyed by (room, metric).
//
// Each key has independent coalescing state; unrelated keys never block each
// other. The registry mutex guards only map bookkeeping, never a fit.
type Registry struct {
	detectors []detector.Detector
	ttl       time.Duration
	log       *logger.Logger
	metrics   repository.Metrics

	mu      sync.Mutex
	entries map[Key]entry
	pending map[Key]*pending

	now func() time.Time
}

// New builds a registry over the full detector set for cfg.
func New(cfg detector.Config, ttl time.Duration, log *logger.Logger, metrics repository.Metrics) *Registry {
	return &Registry{
		detectors: detector.All(cfg),
		ttl:       ttl,
		log:       log,
		metrics:   metrics,
		entries:   make(map[Key]entry),
		pending:   make(map[Key]*pending),
		now:       time.Now,
	}
}

// GetOrFit returns the cached fitted set for key, fitting one from window on
// miss or expiry. A cache hit within the TTL is returned unconditionally;
// staleness is bounded by the TTL, not by comparing windows. On fit failure
// the old entry (if any) stays in place and the call returns ErrFitFailure.
//
// ctx governs only this caller's wait: an abandoned caller does not cancel an
// in-flight fit, which runs to completion and populates the cache for the
// callers behind it.
func (r *Registry) GetOrFit(ctx context.Context, key Key, window *models.SignalWindow) (*FittedSet, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok && r.now().Before(e.exp) {
		r.mu.Unlock()
		r.observe("hit")
		return e.set, nil
	}

	if p, ok := r.pending[key]; ok {
		r.mu.Unlock()
		r.observe("coalesced")
		select {
		case <-p.done:
			return p.set, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p := &pending{done: make(chan struct{})}
	r.pending[key] = p
	r.mu.Unlock()
	r.observe("miss")

	set, err := r.fit(key, window)

	r.mu.Lock()
	delete(r.pending, key)
	if err == nil {
		r.entries[key] = entry{set: set, exp: r.now().Add(r.ttl)}
	}
	r.mu.Unlock()

	p.set, p.err = set, err
	close(p.done)
	return set, err
}

// Invalidate drops the cached entry for key, if any. The next GetOrFit refits.
func (r *Registry) Invalidate(key Key) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// fit builds the full detector set for the window. Detectors that cannot fit
// for lack of data are skipped; the set fails only when nothing fits.
func (r *Registry) fit(key Key, window *models.SignalWindow) (*FittedSet, error) {
	start := r.now()
	set := &FittedSet{
		Models:   make(map[models.DetectorKind]detector.Model, len(r.detectors)),
		Skipped:  make(map[models.DetectorKind]error),
		FittedAt: start,
	}

	for _, d := range r.detectors {
		model, err := d.Fit(window)
		if err != nil {
			if errors.Is(err, detector.ErrInsufficientData) {
				set.Skipped[d.Kind()] = err
				r.log.Debug("detector skipped",
					logger.String("key", key.String()),
					logger.String("kind", string(d.Kind())),
					logger.Error(err))
				continue
			}
			r.observe("fit_failure")
			return nil, fmt.Errorf("%w: %s: %v", ErrFitFailure, d.Kind(), err)
		}
		set.Models[d.Kind()] = model
	}

	if len(set.Models) == 0 {
		r.observe("fit_failure")
		return nil, fmt.Errorf("%w: %v", ErrFitFailure, detector.ErrAllDetectorsFailed)
	}

	if r.metrics != nil {
		r.metrics.RecordLatency("registry_fit", r.now().Sub(start).Seconds())
	}
	r.log.Info("detector set fitted",
		logger.String("key", key.String()),
		logger.Int("models", len(set.Models)),
		logger.Int("skipped", len(set.Skipped)),
		logger.Duration("took", r.now().Sub(start)))
	return set, nil
}

func (r *Registry) observe(event string) {
	if r.metrics != nil {
		r.metrics.RecordRegistry(event)
	}
}
