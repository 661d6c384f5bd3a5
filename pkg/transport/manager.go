// Copyright 2025-2026 Tigro14

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// Sink receives raw bytes from a transport's receive loop. The protocol
// adapters implement it; framing and decoding are their concern.
type Sink interface {
	HandleRaw(network mesh.Network, data []byte, receivedAt time.Time)
}

// ErrNotConnected is returned by Send while the transport is down.
var ErrNotConnected = errors.New("transport: not connected")

// stopCloseDeadline bounds how long Stop waits for the transport handle to
// close. A hung close must not block process exit.
const stopCloseDeadline = 3 * time.Second

// Stats is a point-in-time snapshot of one managed transport, served by
// the admin API.
type Stats struct {
	Network             string    `json:"network"`
	Mode                string    `json:"mode"`
	Status              string    `json:"status"`
	LastRx              time.Time `json:"last_rx"`
	RetryCount          int       `json:"retry_count"`
	Reconnects          int       `json:"reconnects"`
	LastForcedReconnect time.Time `json:"last_forced_reconnect,omitempty"`
}

// Manager keeps exactly one transport alive for one network: it runs the
// receive loop, the silence-based health check, and the optional scheduled
// reconnect, and owns every state transition.
type Manager struct {
	cfg  Config
	dial Dialer
	sink Sink
	log  zerolog.Logger

	mu         sync.Mutex
	tr         Transport
	status     Status
	lastRx     time.Time
	retryCount int
	reconnects int
	lastForced time.Time

	forceCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewManager creates a Manager. A nil dialer uses Dial.
func NewManager(cfg Config, dial Dialer, sink Sink, log zerolog.Logger) *Manager {
	if dial == nil {
		dial = Dial
	}
	return &Manager{
		cfg:  cfg,
		dial: dial,
		sink: sink,
		log: log.With().
			Str("component", "connmgr").
			Str("network", cfg.Network.String()).
			Str("mode", cfg.Mode.String()).
			Logger(),
		status:  StatusDisconnected,
		forceCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	old := m.status
	m.status = s
	m.mu.Unlock()
	if old != s {
		m.log.Info().Str("from", old.String()).Str("to", s.String()).Msg("Connection state changed")
	}
}

// LastRx returns when the transport last delivered data.
func (m *Manager) LastRx() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRx
}

func (m *Manager) markRx() {
	m.mu.Lock()
	m.lastRx = m.now()
	m.mu.Unlock()
}

// Stats returns a snapshot for the admin API.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Network:             m.cfg.Network.String(),
		Mode:                m.cfg.Mode.String(),
		Status:              m.status.String(),
		LastRx:              m.lastRx,
		RetryCount:          m.retryCount,
		Reconnects:          m.reconnects,
		LastForcedReconnect: m.lastForced,
	}
}

// Run connects and starts the background loops. The initial connect is
// synchronous: an open failure after retries is fatal for this network
// (the caller keeps other networks running) and leaves the manager in
// Failed.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.connect(ctx); err != nil {
		m.setStatus(StatusFailed)
		return fmt.Errorf("connect %s: %w", m.cfg.Network, err)
	}

	m.wg.Add(2)
	go m.receiveLoop(ctx)
	go m.healthLoop(ctx)

	if m.cfg.ScheduledReconnect > 0 {
		m.wg.Add(1)
		go m.scheduledReconnectLoop(ctx)
	}
	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	m.setStatus(StatusConnecting)
	tr, err := m.dial(ctx, m.cfg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.tr = tr
	m.lastRx = m.now()
	m.mu.Unlock()
	m.setStatus(StatusConnected)
	return nil
}

// Send writes an encoded frame to the transport.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	tr := m.tr
	status := m.status
	m.mu.Unlock()
	if tr == nil || status != StatusConnected {
		return ErrNotConnected
	}
	if _, err := tr.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", m.cfg.Network, err)
	}
	return nil
}

func (m *Manager) running(ctx context.Context) bool {
	select {
	case <-m.stopCh:
		return false
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

// receiveLoop reads from the transport with a bounded poll timeout.
// Timeouts are retried so shutdown latency stays bounded without dropping
// data; read errors trigger reconnection.
func (m *Manager) receiveLoop(ctx context.Context) {
	defer m.wg.Done()
	buf := make([]byte, 4096)

	for m.running(ctx) {
		m.mu.Lock()
		tr := m.tr
		status := m.status
		m.mu.Unlock()

		if tr == nil || status != StatusConnected {
			// Reconnect in progress; back off briefly.
			select {
			case <-time.After(100 * time.Millisecond):
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		n, err := tr.Read(buf)
		switch {
		case errors.Is(err, ErrReadTimeout):
			continue
		case err != nil:
			if !m.running(ctx) {
				return
			}
			m.log.Warn().Err(err).Msg("Transport read failed, reconnecting")
			m.requestReconnect()
			continue
		}

		m.markRx()
		data := make([]byte, n)
		copy(data, buf[:n])
		m.sink.HandleRaw(m.cfg.Network, data, m.now())
	}
}

// requestReconnect nudges the health loop to rebuild the transport. The
// channel is buffered with one slot: coalescing repeated requests is fine,
// reconnecting twice is not.
func (m *Manager) requestReconnect() {
	select {
	case m.forceCh <- struct{}{}:
	default:
	}
}

// healthLoop watches for silence and executes reconnections. A silence
// longer than SilenceTimeout transitions Connected to SilentDegraded and
// forces a reconnect. The configured timeout/interval ratio is validated
// at startup to keep detection latency near zero.
func (m *Manager) healthLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.cfg.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-m.forceCh:
			m.reconnect(ctx)
		case <-ticker.C:
			if m.cfg.SilenceTimeout <= 0 {
				continue
			}
			m.mu.Lock()
			silence := m.now().Sub(m.lastRx)
			status := m.status
			m.mu.Unlock()

			if status == StatusConnected && silence > m.cfg.SilenceTimeout {
				m.log.Warn().
					Dur("silence", silence).
					Dur("timeout", m.cfg.SilenceTimeout).
					Msg("No traffic past silence timeout, transport considered degraded")
				m.setStatus(StatusSilentDegraded)
				m.reconnect(ctx)
			}
		}
	}
}

// scheduledReconnectLoop proactively rebuilds the transport on a fixed
// cadence. It backs up the silence-based path; it does not replace it.
func (m *Manager) scheduledReconnectLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.ScheduledReconnect)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.log.Info().Msg("Scheduled reconnect")
			m.requestReconnect()
		}
	}
}

// reconnect tears down the transport and dials again, retrying until it
// succeeds or the manager stops. Only the initial connect may be fatal;
// anything health-driven keeps retrying.
func (m *Manager) reconnect(ctx context.Context) {
	m.setStatus(StatusReconnecting)

	m.mu.Lock()
	tr := m.tr
	m.tr = nil
	m.reconnects++
	m.lastForced = m.now()
	m.mu.Unlock()

	if tr != nil {
		if err := tr.Close(); err != nil {
			m.log.Debug().Err(err).Msg("Close before reconnect failed")
		}
	}

	retryWait := m.cfg.HealthInterval
	if retryWait <= 0 {
		retryWait = 10 * time.Second
	}

	for m.running(ctx) {
		err := m.connect(ctx)
		if err == nil {
			return
		}
		m.mu.Lock()
		m.retryCount++
		m.mu.Unlock()
		m.log.Error().Err(err).Dur("retry_in", retryWait).Msg("Reconnect failed")

		select {
		case <-time.After(retryWait):
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop shuts the manager down with a bounded deadline: the transport close
// runs in the background and is abandoned if it hangs.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)

		m.mu.Lock()
		tr := m.tr
		m.tr = nil
		m.mu.Unlock()

		if tr != nil {
			done := make(chan struct{})
			go func() {
				_ = tr.Close()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(stopCloseDeadline):
				m.log.Warn().Msg("Transport close exceeded deadline, abandoning")
			}
		}

		waited := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(stopCloseDeadline):
			m.log.Warn().Msg("Background loops did not stop in time")
		}

		// Failed is terminal; everything else ends Disconnected.
		if m.Status() != StatusFailed {
			m.setStatus(StatusDisconnected)
		}
	})
}
