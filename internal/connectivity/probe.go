// Package connectivity observes network reachability and drives outbox
// sync on transitions, without aggressive polling.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qualivida/portalsync/internal/logging"
)

// DefaultProbeInterval is how often a probe re-checks reachability.
const DefaultProbeInterval = 30 * time.Second

// probeState implements the shared Online/Events half of a Source and
// the edge detection for probe implementations.
type probeState struct {
	mu     sync.RWMutex
	online bool
	events chan bool
}

func newProbeState() *probeState {
	return &probeState{events: make(chan bool, 8)}
}

// Online implements Source.
func (p *probeState) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// Events implements Source.
func (p *probeState) Events() <-chan bool {
	return p.events
}

// set records a probe result and emits a transition event on an edge.
// The zero state reads offline, so a first online result is an edge
// and must be announced: probes that check asynchronously finish their
// first check after the monitor has already seeded from the unchecked
// state, and without the event the monitor would stay offline until
// the next real transition. The monitor dedupes repeated states.
func (p *probeState) set(online bool) {
	p.mu.Lock()
	wasOnline := p.online
	p.online = online
	p.mu.Unlock()

	if wasOnline == online {
		return
	}

	select {
	case p.events <- online:
	default:
		logging.Warn("dropping reachability event, channel full", nil)
	}
}

// HTTPProbe checks reachability with a HEAD request against a health
// endpoint of the backend.
type HTTPProbe struct {
	*probeState
	url      string
	interval time.Duration
	client   *http.Client
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewHTTPProbe creates an HTTPProbe against the given URL. A
// non-positive interval falls back to DefaultProbeInterval.
func NewHTTPProbe(url string, interval time.Duration) *HTTPProbe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &HTTPProbe{
		probeState: newProbeState(),
		url:        url,
		interval:   interval,
		client:     &http.Client{Timeout: 10 * time.Second},
		stopCh:     make(chan struct{}),
	}
}

// Start runs one immediate check, then re-checks every interval.
func (p *HTTPProbe) Start(ctx context.Context) {
	p.set(p.check(ctx))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.set(p.check(ctx))
			}
		}
	}()
}

// Stop terminates the probe loop.
func (p *HTTPProbe) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *HTTPProbe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// WebsocketProbe keeps a heartbeat connection to the backend realtime
// endpoint and derives reachability from ping/pong liveness. A broken
// or un-dialable connection reads as offline; the probe keeps
// re-dialing every interval.
type WebsocketProbe struct {
	*probeState
	url      string
	interval time.Duration
	dialer   *websocket.Dialer
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewWebsocketProbe creates a WebsocketProbe against a ws:// or wss://
// URL. A non-positive interval falls back to DefaultProbeInterval.
func NewWebsocketProbe(url string, interval time.Duration) *WebsocketProbe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &WebsocketProbe{
		probeState: newProbeState(),
		url:        url,
		interval:   interval,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		stopCh:     make(chan struct{}),
	}
}

// Start begins the dial/heartbeat loop.
func (p *WebsocketProbe) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			default:
			}

			conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
			if err != nil {
				p.set(false)
				if !p.sleep() {
					return
				}
				continue
			}

			p.set(true)
			p.heartbeat(conn)
			conn.Close()
			p.set(false)

			if !p.sleep() {
				return
			}
		}
	}()
}

// Stop terminates the probe loop.
func (p *WebsocketProbe) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// heartbeat pings the connection every interval and returns when a ping
// goes unanswered or the connection breaks.
func (p *WebsocketProbe) heartbeat(conn *websocket.Conn) {
	pong := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	// Reader goroutine: pong handlers only fire while a read is pending.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-readDone:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
			select {
			case <-pong:
			case <-readDone:
				return
			case <-p.stopCh:
				return
			case <-time.After(10 * time.Second):
				return
			}
		}
	}
}

// sleep waits one interval; false means the probe was stopped.
func (p *WebsocketProbe) sleep() bool {
	select {
	case <-p.stopCh:
		return false
	case <-time.After(p.interval):
		return true
	}
}
