// Copyright 2025-2026 Tigro14

package bridge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/Tigro14/meshbot-sub004/pkg/config"
	"github.com/Tigro14/meshbot-sub004/pkg/dedup"
	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
	"github.com/Tigro14/meshbot-sub004/pkg/meshcore"
	"github.com/Tigro14/meshbot-sub004/pkg/meshtastic"
	"github.com/Tigro14/meshbot-sub004/pkg/resolver"
	"github.com/Tigro14/meshbot-sub004/pkg/router"
	"github.com/Tigro14/meshbot-sub004/pkg/storage"
	"github.com/Tigro14/meshbot-sub004/pkg/transport"
)

// shutdownDeadline is the hard wall-clock bound on Stop. A detached
// watchdog force-exits the process when a stuck component would otherwise
// block exit past this.
const shutdownDeadline = 8 * time.Second

// pipelineDepth bounds the merged packet channel. Adapters drop (with a
// warning) rather than block when the pipeline falls behind.
const pipelineDepth = 256

// Encoder frames outbound text for one network's native protocol. Like
// the inbound decoder, the wire format is the native client's concern.
type Encoder interface {
	EncodeText(destination uint32, text string) ([]byte, error)
}

// Options collects the external collaborators the bridge is wired with.
type Options struct {
	Config *config.Config

	// Handler executes classified command packets.
	Handler router.CommandHandler

	// Decoder decodes the packet network's native frames.
	Decoder meshtastic.Decoder

	// Directory is the event network's live contact directory; nil when
	// the client does not expose one.
	Directory resolver.Directory

	// Encoders frame outbound text per network.
	Encoders map[mesh.Network]Encoder

	// Dialer overrides transport dialing in tests; nil uses the real one.
	Dialer transport.Dialer

	Log zerolog.Logger
}

// Bridge owns the per-network connection managers, the shared pipeline,
// and the admin API.
type Bridge struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *storage.Store
	res      *resolver.Resolver
	dedup    *dedup.Deduplicator
	router   *router.Router
	encoders map[mesh.Network]Encoder

	managers  map[mesh.Network]*transport.Manager
	mtAdapter *meshtastic.Adapter
	mcAdapter *meshcore.Adapter

	pipeline chan *mesh.Packet
	admin    *http.Server

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// exit is os.Exit, injectable so the watchdog is testable.
	exit func(int)
}

// New validates the transport layout, opens storage and wires all
// components. Preflight failures and storage errors are fatal.
func New(opts Options) (*Bridge, error) {
	cfg := opts.Config
	log := opts.Log.With().Str("component", "bridge").Logger()

	var transportConfigs []transport.Config
	if cfg.Meshtastic.Enabled {
		transportConfigs = append(transportConfigs, cfg.Meshtastic.Transport(mesh.NetMeshtastic))
	}
	if cfg.MeshCore.Enabled {
		transportConfigs = append(transportConfigs, cfg.MeshCore.Transport(mesh.NetMeshCore))
	}
	if err := transport.Preflight(transportConfigs); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Database, opts.Log)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	b := &Bridge{
		cfg:      cfg,
		log:      log,
		store:    store,
		dedup:    dedup.New(cfg.DedupWindow),
		encoders: opts.Encoders,
		managers: make(map[mesh.Network]*transport.Manager),
		pipeline: make(chan *mesh.Packet, pipelineDepth),
		stopCh:   make(chan struct{}),
		exit:     os.Exit,
	}

	b.res = resolver.New(opts.Directory, store, opts.Log)
	b.router = router.New(opts.Handler, b, store, opts.Log)

	if cfg.Meshtastic.Enabled {
		b.mtAdapter = meshtastic.NewAdapter(opts.Decoder, b.res, b, opts.Log)
		b.managers[mesh.NetMeshtastic] = transport.NewManager(
			cfg.Meshtastic.Transport(mesh.NetMeshtastic), opts.Dialer, b.mtAdapter, opts.Log)
	}
	if cfg.MeshCore.Enabled {
		b.mcAdapter = meshcore.NewAdapter(b.res, b, opts.Log)
		b.managers[mesh.NetMeshCore] = transport.NewManager(
			cfg.MeshCore.Transport(mesh.NetMeshCore), opts.Dialer, b.mcAdapter, opts.Log)
	}

	return b, nil
}

// Emit implements the adapters' emitter interface: normalized packets
// enter the shared pipeline. A full pipeline drops the packet rather than
// stalling a receive loop.
func (b *Bridge) Emit(p *mesh.Packet) {
	select {
	case b.pipeline <- p:
	default:
		b.log.Warn().
			Stringer("origin", p.Origin).
			Uint32("from", p.FromID).
			Msg("Pipeline full, dropping packet")
	}
}

// Start warms the resolver cache, connects every enabled network and
// starts the pipeline and admin API. A network whose initial connect
// fails is disabled while the others continue; Start fails only when no
// network comes up.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.res.Load(ctx); err != nil {
		b.log.Warn().Err(err).Msg("Failed to warm identity cache, starting cold")
	}

	connected := 0
	for network, m := range b.managers {
		if err := m.Run(ctx); err != nil {
			b.log.Error().Err(err).
				Stringer("network", network).
				Msg("Network disabled after fatal transport error")
			continue
		}
		connected++
	}
	if connected == 0 {
		return fmt.Errorf("no network could be started")
	}

	b.wg.Add(1)
	go b.run(ctx)

	b.startAdminAPI()

	b.log.Info().Int("networks", connected).Msg("Bridge started")
	return nil
}

// run is the single pipeline goroutine: resolve has already happened in
// the adapters, so the remaining order is self-filter, echo suppression,
// route.
func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case p := <-b.pipeline:
			b.process(ctx, p)
		}
	}
}

func (b *Bridge) process(ctx context.Context, p *mesh.Packet) {
	log := b.log.With().
		Str("trace_id", xid.New().String()).
		Stringer("origin", p.Origin).
		Uint32("from", p.FromID).
		Logger()

	if dedup.ShouldDropSelf(p, b.localID(p.Origin)) {
		log.Debug().Msg("Dropping self-originated direct message")
		return
	}
	if p.IsBroadcast() && p.Kind == mesh.KindText && b.dedup.IsOwnBroadcast(p.Text) {
		log.Debug().Msg("Suppressing echoed own broadcast")
		return
	}

	log.Trace().
		Stringer("class", p.Classification).
		Stringer("kind", p.Kind).
		Msg("Routing packet")
	b.router.Route(ctx, p)
}

func (b *Bridge) localID(network mesh.Network) uint32 {
	switch network {
	case mesh.NetMeshtastic:
		if b.mtAdapter != nil {
			return b.mtAdapter.LocalID()
		}
	case mesh.NetMeshCore:
		if b.mcAdapter != nil {
			return b.mcAdapter.LocalID()
		}
	}
	return 0
}

// SendText implements the router's Sender: it applies duplicate-send
// suppression, frames the text for the target network and transmits.
func (b *Bridge) SendText(network mesh.Network, destination uint32, text string) error {
	if !b.dedup.ShouldSend(destination, text) {
		b.log.Debug().
			Stringer("network", network).
			Uint32("destination", destination).
			Msg("Suppressing duplicate transmission")
		return nil
	}

	enc, ok := b.encoders[network]
	if !ok {
		return fmt.Errorf("no encoder for network %s", network)
	}
	m, ok := b.managers[network]
	if !ok {
		return fmt.Errorf("network %s is not enabled", network)
	}

	data, err := enc.EncodeText(destination, text)
	if err != nil {
		return fmt.Errorf("encoding text for %s: %w", network, err)
	}
	return m.Send(data)
}

// Stop shuts everything down under the hard shutdown deadline. The
// watchdog fires only if a component hangs past it.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		watchdog := time.AfterFunc(shutdownDeadline, func() {
			b.log.Error().Msg("Shutdown deadline exceeded, forcing exit")
			b.exit(1)
		})
		defer watchdog.Stop()

		close(b.stopCh)

		for _, m := range b.managers {
			m.Stop()
		}

		if b.admin != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := b.admin.Shutdown(shutdownCtx); err != nil {
				b.log.Warn().Err(err).Msg("Admin API shutdown error")
			}
			cancel()
		}

		b.wg.Wait()

		if err := b.store.Close(); err != nil {
			b.log.Warn().Err(err).Msg("Storage close error")
		}
		b.log.Info().Msg("Bridge stopped")
	})
}
