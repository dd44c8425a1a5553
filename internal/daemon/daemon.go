// Package daemon wires the trade negotiation core to its collaborators:
// the tracker transport below it, and the UI/settlement observers above it.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"tradepost.dev/go/tradepost/internal/config"
	"tradepost.dev/go/tradepost/internal/identity"
	"tradepost.dev/go/tradepost/internal/protocol"
	"tradepost.dev/go/tradepost/internal/tracker"
	"tradepost.dev/go/tradepost/internal/trading"
	"tradepost.dev/go/tradepost/internal/transport"
)

// Settler is the settlement collaborator boundary. The daemon surfaces
// lock completion and accept confirmations; executing the trade on-chain
// is entirely the collaborator's business.
type Settler interface {
	ReadyToSettle(s trading.Settlement)
	AcceptReceived(partnerAddress, hash string)
}

// LogSettler is the default settler: it only logs, tagging each event with
// an ID so an external process can correlate follow-ups.
type LogSettler struct{}

func (LogSettler) ReadyToSettle(s trading.Settlement) {
	slog.Info("Trade ready to settle",
		"id", uuid.NewString(),
		"partner", s.PartnerAddress,
		"local_hash", s.LocalOfferHash,
		"remote_hash", s.RemoteOfferHash,
	)
}

func (LogSettler) AcceptReceived(partnerAddress, hash string) {
	slog.Info("Trade accept received",
		"id", uuid.NewString(),
		"partner", partnerAddress,
		"hash", hash,
	)
}

// Options configures the daemon
type Options struct {
	Config   *config.Config
	Identity *identity.Identity
	Settler  Settler // nil uses LogSettler
}

// Daemon is the main tradepost daemon
type Daemon struct {
	cfg      *config.Config
	identity *identity.Identity

	trackers  *tracker.Registry
	registry  *trading.Registry
	transport *transport.Transport
	limiter   *RateLimiter
	metrics   *Metrics
	logBuffer *LogBuffer
	hub       *WSHub
	settler   Settler

	eventServer *http.Server
	startTime   time.Time
	ctx         context.Context
	cancel      context.CancelFunc
}

// Status represents the daemon's current state
type Status struct {
	Running           bool      `json:"running"`
	PID               int       `json:"pid"`
	Uptime            string    `json:"uptime"`
	StartTime         time.Time `json:"start_time"`
	Address           string    `json:"address"`
	SessionID         string    `json:"session_id"`
	Sessions          int       `json:"sessions"`
	IdentifiedPeers   int       `json:"identified_peers"`
	ActivePartner     string    `json:"active_partner,omitempty"`
	TrackersReachable int       `json:"trackers_reachable"`
	Observers         int       `json:"observers"`
}

// New creates a new daemon instance
func New(opts *Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if opts.Identity == nil {
		return nil, fmt.Errorf("identity required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	logBuffer := NewLogBuffer(LogBufferSize)
	setupLogging(opts.Config.Logging, logBuffer)

	settler := opts.Settler
	if settler == nil {
		settler = LogSettler{}
	}

	sources := append([]string(nil), opts.Config.Trackers.Announce...)
	if opts.Config.Discovery.MDNS {
		sources = append(sources, transport.MDNSSourceURL)
	}

	d := &Daemon{
		cfg:       opts.Config,
		identity:  opts.Identity,
		trackers:  tracker.NewRegistry(sources),
		limiter:   NewRateLimiter(nil),
		metrics:   NewMetrics(),
		logBuffer: logBuffer,
		hub:       NewWSHub(),
		settler:   settler,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	d.registry = trading.NewRegistry(opts.Identity.Address, d)
	d.transport = transport.New(transport.Options{
		AnnounceURLs: opts.Config.Trackers.Announce,
		MDNS:         opts.Config.Discovery.MDNS,
	}, d)

	return d, nil
}

// setupLogging installs the buffered slog handler per config
func setupLogging(cfg config.LoggingConfig, buffer *LogBuffer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if cfg.Format == "json" {
		base = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		base = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(NewBufferedHandler(buffer, base)))
}

// Start brings up the event hub, observer endpoints, and the transport
func (d *Daemon) Start() error {
	go d.hub.Run()

	if d.cfg.Daemon.EventEnabled {
		if err := d.startEventServer(d.cfg.Daemon.EventPort); err != nil {
			return fmt.Errorf("start event server: %w", err)
		}
	}

	if err := d.transport.Start(); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	slog.Info("Daemon started",
		"address", d.identity.Address,
		"session", d.transport.SessionID(),
		"trackers", len(d.cfg.Trackers.Announce),
	)
	return nil
}

// Wait blocks until the context passed in is cancelled, then shuts down
func (d *Daemon) Wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-d.ctx.Done():
	}
	d.Stop()
}

// Stop tears the daemon down
func (d *Daemon) Stop() {
	d.cancel()
	d.transport.Stop()

	if d.eventServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.eventServer.Shutdown(shutdownCtx)
	}

	slog.Info("Daemon stopped")
}

// Registry exposes the trading registry for local commands and snapshots
func (d *Daemon) Registry() *trading.Registry {
	return d.registry
}

// Status returns the daemon's current status
func (d *Daemon) Status() Status {
	return Status{
		Running:           true,
		PID:               os.Getpid(),
		Uptime:            time.Since(d.startTime).Round(time.Second).String(),
		StartTime:         d.startTime,
		Address:           d.identity.Address,
		SessionID:         d.transport.SessionID(),
		Sessions:          d.registry.SessionCount(),
		IdentifiedPeers:   d.registry.IdentifiedCount(),
		ActivePartner:     d.registry.ActivePartner(),
		TrackersReachable: d.trackers.ReachableCount(),
		Observers:         d.hub.ClientCount(),
	}
}

// MetricsSnapshot assembles the metrics view from every counter source
func (d *Daemon) MetricsSnapshot() MetricsSnapshot {
	stats := d.registry.Stats()
	return d.metrics.Snapshot(CounterMetrics{
		ValidationFailures:  stats.ValidationFailures.Load(),
		HashRejections:      stats.HashRejections.Load(),
		BindingsSuperseded:  stats.BindingsSuperseded.Load(),
		DroppedUnidentified: stats.DroppedUnidentified.Load(),
		RateLimitDrops:      d.limiter.Drops.Load(),
		TrackerAnomalies:    d.trackers.Anomalies.Load(),
	})
}

// --- transport.Handler ---

// TrackerConnected records tracker reachability. An unconfigured URL is a
// config error surfaced by the registry; it degrades to the logged anomaly.
func (d *Daemon) TrackerConnected(announceURL string) {
	if err := d.trackers.OnTrackerConnected(announceURL); err != nil {
		return
	}
	d.hub.Broadcast(&Event{
		Event:   EventTrackerChanged,
		Payload: mustMarshal(map[string]any{"url": announceURL, "reachable": true}),
	})
}

func (d *Daemon) TrackerClosed(announceURL string) {
	d.trackers.OnTrackerClosed(announceURL)
	d.hub.Broadcast(&Event{
		Event:   EventTrackerChanged,
		Payload: mustMarshal(map[string]any{"url": announceURL, "reachable": false}),
	})
}

func (d *Daemon) TrackerWarning(err error) {
	d.trackers.OnTrackerWarning(err)
}

func (d *Daemon) PeerConnected(peer *transport.Peer) {
	d.registry.OnPeerConnected(peer)
	d.metrics.RecordMessageSent(string(protocol.MsgAddress))
}

func (d *Daemon) PeerClosed(peerID string) {
	d.registry.OnPeerClosed(peerID)
	d.limiter.RemovePeer(peerID)
}

// MessageReceived rate-limits and forwards one inbound payload. The
// envelope is peeked for its type; anything unparseable goes straight to
// the registry, which counts and drops it.
func (d *Daemon) MessageReceived(peer *transport.Peer, raw []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.registry.HandleMessage(peer, raw)
		return
	}

	d.metrics.RecordMessageReceived(string(msg.Type), len(raw))

	if err := d.limiter.Allow(peer.ID(), msg.Type, len(raw)); err != nil {
		slog.Warn("Message rate limited",
			"session", peer.ID(),
			"type", msg.Type,
			"error", err,
		)
		return
	}

	d.registry.HandleMessage(peer, raw)
}

// --- trading.Notifier ---

func (d *Daemon) PeerIdentified(address string) {
	d.hub.Broadcast(&Event{
		Event:   EventPeerIdentified,
		Payload: mustMarshal(map[string]any{"address": address}),
	})
}

func (d *Daemon) PeerUpdated(address string) {
	d.hub.Broadcast(&Event{
		Event:   EventPeerUpdated,
		Payload: mustMarshal(map[string]any{"address": address}),
	})
}

func (d *Daemon) PartnerClosed(address string) {
	d.hub.Broadcast(&Event{
		Event:   EventPartnerClosed,
		Payload: mustMarshal(map[string]any{"address": address}),
	})
}

func (d *Daemon) ReadyToSettle(s trading.Settlement) {
	d.hub.Broadcast(&Event{Event: EventReadyToSettle, Payload: mustMarshal(s)})
	d.settler.ReadyToSettle(s)
}

func (d *Daemon) AcceptReceived(address, hash string) {
	d.hub.Broadcast(&Event{
		Event:   EventAcceptReceived,
		Payload: mustMarshal(map[string]any{"address": address, "hash": hash}),
	})
	d.settler.AcceptReceived(address, hash)
}

// --- local commands (UI facade) ---

// RequestTrade transmits a trade request to the identified peer
func (d *Daemon) RequestTrade(address string) error {
	if err := d.registry.RequestTrade(address); err != nil {
		return err
	}
	d.metrics.RecordMessageSent(string(protocol.MsgTradeRequest))
	return nil
}

// SetLocalOffer replaces and transmits our offer to the peer
func (d *Daemon) SetLocalOffer(address string, offer []protocol.AssetEntry) error {
	if err := d.registry.SetLocalOffer(address, offer); err != nil {
		return err
	}
	d.metrics.RecordMessageSent(string(protocol.MsgOffer))
	return nil
}

// SetLocalLock commits or retracts our lock on the current local offer
func (d *Daemon) SetLocalLock(address string, locked bool) error {
	if err := d.registry.SetLocalLock(address, locked); err != nil {
		return err
	}
	d.metrics.RecordMessageSent(string(protocol.MsgLockIn))
	return nil
}

// SendChat transmits a chat line to the peer
func (d *Daemon) SendChat(address, text string) error {
	if err := d.registry.SendChat(address, text); err != nil {
		return err
	}
	d.metrics.RecordMessageSent(string(protocol.MsgChat))
	return nil
}

// SendAccept confirms execution of the locked trade
func (d *Daemon) SendAccept(address string) error {
	if err := d.registry.SendAccept(address); err != nil {
		return err
	}
	d.metrics.RecordMessageSent(string(protocol.MsgAccept))
	return nil
}

// RequestMorePeers re-announces to every rendezvous source
func (d *Daemon) RequestMorePeers() {
	d.transport.RequestMorePeers()
}
