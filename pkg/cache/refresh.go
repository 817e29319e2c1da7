package cache

import (
	"context"
	"math/rand"
	"time"

	"github.com/tiercache/tiercache/pkg/logging"
)

// triggerEarlyRefresh schedules a background reload when a hit lands
// inside the soft-TTL window. The per-key throttle, the global
// semaphore, and the key lock keep refresh load bounded.
func (m *Manager[K, V]) triggerEarlyRefresh(key K, ks *keyState) {
	last := ks.lastRefresh.Load()
	if last == 0 {
		return
	}

	now := time.Now()
	age := now.Sub(time.Unix(0, last))

	// Not yet inside the soft window before hard expiry.
	if age < m.opts.Policy.DefaultTTL()-m.opts.EarlyRefreshThreshold {
		return
	}
	// Refreshed too recently.
	if age < m.opts.MinRefreshInterval {
		return
	}
	// Global cap reached: skip silently, a later hit will retry.
	if !m.refreshSlots.TryAcquire(1) {
		return
	}

	m.spawn("early-refresh", func() {
		defer m.refreshSlots.Release(1)

		// Spread refresh starts so a popular key's callers do not
		// stampede the loader at the same instant.
		delay := time.Duration(rand.Int63n(int64(m.opts.RefreshStartJitter)))
		select {
		case <-m.stopCh:
			return
		case <-time.After(delay):
		}

		// The key lock collapses duplicate refreshes of the same key.
		ks.mu.Lock()
		defer ks.mu.Unlock()

		// Re-check the throttle: another refresh may have completed
		// while this task waited for the lock.
		if last := ks.lastRefresh.Load(); last != 0 {
			if time.Since(time.Unix(0, last)) < m.opts.MinRefreshInterval {
				return
			}
		}

		ctx := context.Background()
		value, err := m.opts.Loader(ctx, key)
		if err != nil {
			m.logger.Warn("early refresh load failed", logging.Err(err))
			return
		}

		if err := m.opts.Policy.Write(ctx, key, value, m.opts.Layers, m.opts.Writer, m.jitteredTTLs()); err != nil {
			m.logger.Warn("early refresh write failed", logging.Err(err))
			return
		}

		ks.lastRefresh.Store(time.Now().UnixNano())
		ks.earlyRefreshes.Add(1)
		m.totalEarlyRefreshes.Add(1)
		if m.opts.Hooks.OnEarlyRefresh != nil {
			m.opts.Hooks.OnEarlyRefresh(key)
		}
	})
}

// cleanupLoop periodically drops per-key coordination state that has
// gone stale. The layers themselves are untouched: their entries
// expire by TTL on their own.
func (m *Manager[K, V]) cleanupLoop() {
	defer m.taskGroup.Done()

	ticker := time.NewTicker(m.opts.StaleKeyCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.cleanupStaleKeys(); n > 0 {
				m.logger.Debug("dropped stale key state", logging.F("count", n))
			}
		}
	}
}

// cleanupStaleKeys removes key records older than the stale threshold
// and returns how many were dropped.
func (m *Manager[K, V]) cleanupStaleKeys() int {
	now := time.Now()
	removed := 0

	m.keys.Range(func(k, v interface{}) bool {
		ks := v.(*keyState)

		ref := ks.lastRefresh.Load()
		if ref == 0 {
			// Never refreshed: age from first touch instead.
			ref = ks.firstSeen
		}
		if now.Sub(time.Unix(0, ref)) > m.opts.StaleThreshold {
			m.keys.Delete(k)
			removed++
		}
		return true
	})

	return removed
}
