// Package cache holds the in-process summary cache. Entries expire after a
// TTL and the least recently used entry is evicted once the cache is full.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mealtracker/internal/log"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Clear drops every entry. Writes call it since one meal changes daily,
	// weekly and member summaries at once.
	Clear()
	Size() int
}

// Loader fronts a Cache and collapses concurrent misses for the same key
// into one load.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group
	gen   atomic.Uint64
}

func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// Get returns the cached value for key or calls load once for all concurrent
// callers. Load errors are not cached.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	gen := l.gen.Load()
	v, err, _ := l.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		// A write since the load started makes v stale. The second check
		// catches an Invalidate that clears the cache before Set lands.
		if l.gen.Load() == gen {
			l.cache.Set(key, v)
			if l.gen.Load() != gen {
				l.cache.Delete(key)
			}
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops every cached value. Callers arriving afterwards never
// join a load that started before the invalidation.
func (l *Loader[T]) Invalidate() {
	l.gen.Add(1)
	l.cache.Clear()
}

// Manager runs periodic expiry sweeps for registered caches.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type Cleaner interface {
	CleanExpired() int
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleaned := 0
			for _, c := range m.caches {
				cleaned += c.CleanExpired()
			}
			if cleaned > 0 {
				slog.Debug("Expired cache entries removed", log.FieldComponent, log.ComponentCache, "count", cleaned)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop ends the cleanup goroutine started by StartCleanup.
func (m *Manager) Stop() {
	close(m.stopCleanup)
	<-m.cleanupDone
}
