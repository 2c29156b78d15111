// Package connectivity observes network reachability and drives outbox
// sync on transitions, without aggressive polling.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/qualivida/portalsync/internal/logging"
	"github.com/qualivida/portalsync/internal/models"
)

// Source reports reachability of the remote backend. Implementations
// emit edge-triggered transition events on Events: true when the
// backend became reachable, false when it became unreachable.
type Source interface {
	// Online returns the current reachability.
	Online() bool

	// Events returns the transition notification channel.
	Events() <-chan bool
}

// Flusher is the sync entry point the monitor drives; satisfied by the
// data facade.
type Flusher interface {
	SyncOutbox(ctx context.Context) (*models.SyncResult, error)
}

// DefaultSyncInterval is the safety-net timer period: low-frequency, to
// catch missed transition events and silently-failed flushes.
const DefaultSyncInterval = 5 * time.Minute

// Monitor is a two-state (online/offline) machine seeded from the
// source at startup. offline -> online triggers a flush; so does module
// start when already online, and a periodic tick while online.
// online -> offline only flips state.
type Monitor struct {
	source   Source
	flusher  Flusher
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.RWMutex
	online  bool
	running bool
}

// NewMonitor creates a Monitor. A non-positive interval falls back to
// DefaultSyncInterval.
func NewMonitor(source Source, flusher Flusher, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Monitor{
		source:   source,
		flusher:  flusher,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start seeds the state from the source and begins watching. If already
// online it triggers one startup catch-up flush.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.online = m.source.Online()
	online := m.online
	m.mu.Unlock()

	if online {
		go m.runFlush(ctx, "startup")
	}

	m.wg.Add(1)
	go m.watch(ctx)

	logging.Info("connectivity monitor started",
		map[string]interface{}{"online": online, "interval": m.interval.String()})
}

// Stop releases the event listener and the timer and waits for the
// watcher goroutine to exit. Calling Stop again is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	logging.Info("connectivity monitor stopped", nil)
}

// Online returns the monitor's current view of reachability.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// watch consumes transition events and the periodic safety-net ticker.
func (m *Monitor) watch(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case online, ok := <-m.source.Events():
			if !ok {
				return
			}
			m.handleTransition(ctx, online)
		case <-ticker.C:
			if m.Online() {
				go m.runFlush(ctx, "periodic")
			}
		}
	}
}

// handleTransition flips the state and flushes on the offline -> online
// edge. Reads and writes keep working against the local cache while
// offline, so the reverse edge needs no action.
func (m *Monitor) handleTransition(ctx context.Context, online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if wasOnline == online {
		return
	}

	logging.Info("reachability changed",
		map[string]interface{}{"was_online": wasOnline, "online": online})

	if online {
		go m.runFlush(ctx, "network-restored")
	}
}

// runFlush invokes one flush cycle. The facade coalesces concurrent
// invocations, so overlapping triggers are safe.
func (m *Monitor) runFlush(ctx context.Context, reason string) {
	result, err := m.flusher.SyncOutbox(ctx)
	if err != nil {
		logging.Error("outbox flush failed", err,
			map[string]interface{}{"trigger": reason})
		return
	}
	if result != nil && !result.Skipped {
		logging.Debug("outbox flush finished",
			map[string]interface{}{
				"trigger": reason,
				"synced":  result.Synced,
				"failed":  result.Failed,
			})
	}
}
