// Package registry owns the in-memory guest list and its durable copy.
//
// All access goes through Registry. Every method takes the registry lock,
// and when a cross-process Locker is configured, that lock too, so writes
// to the guest file are totally ordered.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"party-rsvp/internal/lock"
	"party-rsvp/internal/metrics"
	"party-rsvp/internal/models"
	"party-rsvp/internal/storage"
)

const (
	lockKey = "guests"
	lockTTL = 30 * time.Second
)

// Store is the durable side of the registry. Save reports failures that
// leave the previous file intact with storage.ErrWriteFailed.
type Store interface {
	Load() map[models.UserID]models.Guest
	Save(guests map[models.UserID]models.Guest) error
}

type Registry struct {
	mu     sync.Mutex
	guests map[models.UserID]models.Guest
	dirty  bool

	store   Store
	locker  lock.Locker
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLocker makes every operation also hold a cross-process lock and
// re-read the guest file first, for deployments where several processes
// share it.
func WithLocker(locker lock.Locker) Option {
	return func(r *Registry) {
		r.locker = locker
	}
}

// WithMetrics reports flushes and the attending count.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = logger.With().Str("component", "Registry").Logger()
	}
}

// New creates a registry populated from store.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.load()
	return r
}

// Get returns the guest record for id.
func (r *Registry) Get(ctx context.Context, id models.UserID) (models.Guest, bool, error) {
	var (
		guest models.Guest
		found bool
	)
	err := r.withLock(ctx, func() error {
		guest, found = r.get(id)
		return nil
	})
	return guest, found, err
}

// Put inserts or replaces the record for id. It does not flush.
func (r *Registry) Put(ctx context.Context, id models.UserID, guest models.Guest) error {
	return r.withLock(ctx, func() error {
		r.put(id, guest)
		return nil
	})
}

// Remove deletes the record for id. Removing an absent id is a no-op.
func (r *Registry) Remove(ctx context.Context, id models.UserID) error {
	return r.withLock(ctx, func() error {
		r.remove(id)
		return nil
	})
}

// ListAttending returns all attending guests ordered by user id.
func (r *Registry) ListAttending(ctx context.Context) ([]models.Guest, error) {
	var list []models.Guest
	err := r.withLock(ctx, func() error {
		list = make([]models.Guest, 0, len(r.guests))
		for _, g := range r.guests {
			if g.Status == models.StatusAttending {
				list = append(list, g.Clone())
			}
		}
		return nil
	})
	slices.SortFunc(list, func(a, b models.Guest) int {
		return strings.Compare(string(a.UserID), string(b.UserID))
	})
	return list, err
}

// Count returns the number of attending guests.
func (r *Registry) Count(ctx context.Context) (int, error) {
	n := 0
	err := r.withLock(ctx, func() error {
		for _, g := range r.guests {
			if g.Status == models.StatusAttending {
				n++
			}
		}
		return nil
	})
	return n, err
}

// Flush writes the whole registry to the store.
func (r *Registry) Flush(ctx context.Context) error {
	return r.withLock(ctx, r.flushLocked)
}

// Reload discards in-memory state, including unflushed changes, and reads
// the store again.
func (r *Registry) Reload(ctx context.Context) error {
	return r.withLock(ctx, func() error {
		r.load()
		return nil
	})
}

// Update runs fn as one read-modify-write unit. If fn changed anything the
// registry is flushed before the lock is released. When fn or the flush
// fails, fn's changes are rolled back and the error is returned.
func (r *Registry) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return r.withLock(ctx, func() error {
		tx := &Tx{r: r, undo: make(map[models.UserID]undoEntry), dirty: r.dirty}
		if err := fn(tx); err != nil {
			tx.rollback()
			return err
		}
		if len(tx.undo) == 0 {
			return nil
		}
		if err := r.flushLocked(); err != nil {
			tx.rollback()
			return err
		}
		return nil
	})
}

func (r *Registry) withLock(ctx context.Context, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, lockKey, lockTTL)
		if err != nil {
			return fmt.Errorf("failed to lock guest file: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				r.log.Warn().Err(err).Msg("Failed to release guest file lock")
			}
		}()
		// Another process may have written since we last looked.
		if !r.dirty {
			r.load()
		}
	}

	return fn()
}

func (r *Registry) load() {
	r.guests = r.store.Load()
	if r.guests == nil {
		r.guests = make(map[models.UserID]models.Guest)
	}
	r.dirty = false
	r.metrics.SetAttending(len(r.guests))
}

// flushLocked saves the registry. A transient write failure keeps the
// registry dirty, so memory stays authoritative and the next flush retries.
func (r *Registry) flushLocked() error {
	err := r.store.Save(r.guests)
	r.metrics.ObserveFlush(err)
	if errors.Is(err, storage.ErrWriteFailed) {
		r.log.Warn().Err(err).Int("guests", len(r.guests)).Msg("Guest file not updated, keeping changes in memory")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to flush guests: %w", err)
	}
	r.dirty = false
	r.metrics.SetAttending(len(r.guests))
	r.log.Debug().Int("guests", len(r.guests)).Msg("Flushed guests")
	return nil
}

func (r *Registry) get(id models.UserID) (models.Guest, bool) {
	g, ok := r.guests[id]
	if !ok {
		return models.Guest{}, false
	}
	return g.Clone(), true
}

func (r *Registry) put(id models.UserID, guest models.Guest) {
	guest = guest.Clone()
	guest.UserID = id
	r.guests[id] = guest
	r.dirty = true
}

func (r *Registry) remove(id models.UserID) bool {
	if _, ok := r.guests[id]; !ok {
		return false
	}
	delete(r.guests, id)
	r.dirty = true
	return true
}
