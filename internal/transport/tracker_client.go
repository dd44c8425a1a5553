package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// trackerDialTimeout bounds a single connection attempt
	trackerDialTimeout = 15 * time.Second

	// trackerReconnectMin/Max bound the reconnect backoff
	trackerReconnectMin = 2 * time.Second
	trackerReconnectMax = 2 * time.Minute

	// trackerWriteWait bounds a single frame write
	trackerWriteWait = 10 * time.Second

	// trackerMaxFrame caps inbound signaling frames
	trackerMaxFrame = 256 * 1024
)

// Signaling frame actions exchanged with a rendezvous tracker
const (
	frameAnnounce = "announce"
	framePeers    = "peers"
	frameJoin     = "join"
	frameLeave    = "leave"
	frameSignal   = "signal"
	frameWarning  = "warning"
)

// frame is the tracker signaling envelope. Signal frames relay opaque
// trade message bytes between two announced sessions; the tracker never
// inspects them.
type frame struct {
	Type   string          `json:"type"`
	PeerID string          `json:"peer_id,omitempty"`
	Peers  []string        `json:"peers,omitempty"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// trackerClient keeps one websocket rendezvous connection alive and maps
// tracker-relayed sessions onto Peer handles.
type trackerClient struct {
	url       string
	sessionID string
	handler   Handler
	ctx       context.Context

	mu    sync.Mutex
	conn  *websocket.Conn
	peers map[string]*Peer // remote session ID -> handle
}

func newTrackerClient(ctx context.Context, url, sessionID string, handler Handler) *trackerClient {
	return &trackerClient{
		url:       url,
		sessionID: sessionID,
		handler:   handler,
		ctx:       ctx,
		peers:     make(map[string]*Peer),
	}
}

// run dials the tracker and keeps reconnecting with capped backoff until
// the transport shuts down.
func (tc *trackerClient) run() {
	backoff := trackerReconnectMin

	for {
		select {
		case <-tc.ctx.Done():
			return
		default:
		}

		if err := tc.connect(); err != nil {
			tc.handler.TrackerWarning(fmt.Errorf("tracker %s: %w", tc.url, err))
			select {
			case <-tc.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > trackerReconnectMax {
				backoff = trackerReconnectMax
			}
			continue
		}

		backoff = trackerReconnectMin
		tc.readLoop()

		tc.dropAllPeers()
		tc.handler.TrackerClosed(tc.url)
	}
}

// connect performs one dial + announce
func (tc *trackerClient) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: trackerDialTimeout}
	conn, _, err := dialer.DialContext(tc.ctx, tc.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(trackerMaxFrame)

	tc.mu.Lock()
	tc.conn = conn
	tc.mu.Unlock()

	tc.handler.TrackerConnected(tc.url)
	tc.announce()
	return nil
}

// announce (re-)registers our session with the tracker and asks for the
// current peer set.
func (tc *trackerClient) announce() {
	if err := tc.writeFrame(&frame{Type: frameAnnounce, PeerID: tc.sessionID}); err != nil {
		slog.Debug("Announce failed", "tracker", tc.url, "error", err)
	}
}

// readLoop consumes signaling frames until the connection dies
func (tc *trackerClient) readLoop() {
	for {
		tc.mu.Lock()
		conn := tc.conn
		tc.mu.Unlock()
		if conn == nil {
			return
		}

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-tc.ctx.Done():
			default:
				slog.Debug("Tracker read failed", "tracker", tc.url, "error", err)
			}
			return
		}
		tc.handleFrame(&f)
	}
}

func (tc *trackerClient) handleFrame(f *frame) {
	switch f.Type {
	case framePeers:
		for _, id := range f.Peers {
			tc.addPeer(id)
		}
	case frameJoin:
		tc.addPeer(f.PeerID)
	case frameLeave:
		tc.removePeer(f.PeerID)
	case frameSignal:
		tc.mu.Lock()
		peer := tc.peers[f.From]
		tc.mu.Unlock()
		if peer == nil {
			// Signal from a session the tracker never introduced:
			// treat it as an implicit join.
			peer = tc.addPeer(f.From)
			if peer == nil {
				return
			}
		}
		tc.handler.MessageReceived(peer, f.Data)
	case frameWarning:
		tc.handler.TrackerWarning(fmt.Errorf("tracker %s: %s", tc.url, f.Reason))
	default:
		slog.Debug("Unknown tracker frame", "tracker", tc.url, "type", f.Type)
	}
}

// addPeer creates a handle for a tracker-introduced session
func (tc *trackerClient) addPeer(remoteID string) *Peer {
	if remoteID == "" || remoteID == tc.sessionID {
		return nil
	}

	tc.mu.Lock()
	if existing, ok := tc.peers[remoteID]; ok {
		tc.mu.Unlock()
		return existing
	}
	peer := &Peer{
		id:     remoteID,
		source: tc.url,
		sendFn: func(data []byte) error {
			return tc.writeFrame(&frame{
				Type: frameSignal,
				From: tc.sessionID,
				To:   remoteID,
				Data: data,
			})
		},
	}
	tc.peers[remoteID] = peer
	tc.mu.Unlock()

	tc.handler.PeerConnected(peer)
	return peer
}

func (tc *trackerClient) removePeer(remoteID string) {
	tc.mu.Lock()
	_, ok := tc.peers[remoteID]
	delete(tc.peers, remoteID)
	tc.mu.Unlock()

	if ok {
		tc.handler.PeerClosed(remoteID)
	}
}

// dropAllPeers closes every session that lived on this tracker connection
func (tc *trackerClient) dropAllPeers() {
	tc.mu.Lock()
	ids := make([]string, 0, len(tc.peers))
	for id := range tc.peers {
		ids = append(ids, id)
	}
	tc.peers = make(map[string]*Peer)
	tc.conn = nil
	tc.mu.Unlock()

	for _, id := range ids {
		tc.handler.PeerClosed(id)
	}
}

// writeFrame serializes one frame under the write lock
func (tc *trackerClient) writeFrame(f *frame) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.conn == nil {
		return fmt.Errorf("tracker %s not connected", tc.url)
	}
	tc.conn.SetWriteDeadline(time.Now().Add(trackerWriteWait))
	return tc.conn.WriteJSON(f)
}

func (tc *trackerClient) close() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.conn != nil {
		tc.conn.Close()
		tc.conn = nil
	}
}
