package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// lanServiceType is the mDNS service type for tradepost nodes
	lanServiceType = "_tradepost._tcp"

	// lanDomain is the mDNS domain
	lanDomain = "local."

	// lanBrowseInterval is how often to scan for new LAN peers
	lanBrowseInterval = 30 * time.Second

	// lanBrowseWindow is how long a single browse listens
	lanBrowseWindow = 5 * time.Second

	// lanDialTimeout bounds a connection attempt to a discovered peer
	lanDialTimeout = 10 * time.Second
)

// lanHello is the first frame on a direct LAN connection; it carries the
// dialer's transport session ID so the acceptor can name the session.
type lanHello struct {
	SessionID string `json:"sid"`
}

// lanService is the LAN rendezvous source: it advertises our listener over
// mDNS, browses for other nodes, and speaks length-prefixed frames on
// direct TCP connections.
type lanService struct {
	sessionID string
	handler   Handler
	ctx       context.Context

	listener net.Listener
	server   *zeroconf.Server

	mu    sync.Mutex
	conns map[string]net.Conn // remote session ID -> conn
}

func newLANService(ctx context.Context, sessionID string, port int, handler Handler) (*lanService, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &lanService{
		sessionID: sessionID,
		handler:   handler,
		ctx:       ctx,
		listener:  listener,
		conns:     make(map[string]net.Conn),
	}, nil
}

// run advertises the service, accepts inbound connections, and browses for
// peers until the transport shuts down.
func (l *lanService) run() {
	port := l.listener.Addr().(*net.TCPAddr).Port

	server, err := zeroconf.Register(
		instanceName(l.sessionID),
		lanServiceType,
		lanDomain,
		port,
		[]string{"sid=" + l.sessionID, "v=1"},
		nil,
	)
	if err != nil {
		l.handler.TrackerWarning(fmt.Errorf("mdns register: %w", err))
	} else {
		l.server = server
	}

	l.handler.TrackerConnected(MDNSSourceURL)
	slog.Info("LAN source started", "port", port, "session", l.sessionID)

	go l.acceptLoop()
	go l.browseLoop()
}

func (l *lanService) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
			default:
				slog.Debug("LAN accept failed", "error", err)
			}
			return
		}
		go l.handleConn(conn, "")
	}
}

func (l *lanService) browseLoop() {
	l.browseNow()

	ticker := time.NewTicker(lanBrowseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.browseNow()
		}
	}
}

// browseNow performs a single mDNS browse and dials anything new
func (l *lanService) browseNow() {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		slog.Debug("Failed to create mDNS resolver", "error", err)
		return
	}

	entries := make(chan *zeroconf.ServiceEntry)
	browseCtx, cancel := context.WithTimeout(l.ctx, lanBrowseWindow)
	defer cancel()

	go func() {
		for entry := range entries {
			l.handleEntry(entry)
		}
	}()

	if err := resolver.Browse(browseCtx, lanServiceType, lanDomain, entries); err != nil {
		slog.Debug("mDNS browse failed", "error", err)
	}
	<-browseCtx.Done()
}

// handleEntry dials a discovered node. Only the side with the smaller
// session ID dials, so a pair of nodes ends up with one connection.
func (l *lanService) handleEntry(entry *zeroconf.ServiceEntry) {
	var sid string
	for _, txt := range entry.Text {
		if strings.HasPrefix(txt, "sid=") {
			sid = txt[4:]
		}
	}
	if sid == "" || sid == l.sessionID || l.sessionID > sid {
		return
	}

	l.mu.Lock()
	_, known := l.conns[sid]
	l.mu.Unlock()
	if known {
		return
	}

	host := entry.HostName
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0].String()
	}
	addr := fmt.Sprintf("%s:%d", host, entry.Port)

	conn, err := net.DialTimeout("tcp", addr, lanDialTimeout)
	if err != nil {
		slog.Debug("LAN dial failed", "addr", addr, "error", err)
		return
	}

	// Dialer introduces itself first
	hello, _ := json.Marshal(lanHello{SessionID: l.sessionID})
	if err := newFramer(nil, conn).writeFrame(hello); err != nil {
		conn.Close()
		return
	}

	go l.handleConn(conn, sid)
}

// handleConn runs one direct LAN session. remoteID is empty on the
// accepting side until the hello frame names it.
func (l *lanService) handleConn(conn net.Conn, remoteID string) {
	f := newFramer(conn, conn)

	if remoteID == "" {
		conn.SetReadDeadline(time.Now().Add(lanDialTimeout))
		raw, err := f.readFrame()
		if err != nil {
			conn.Close()
			return
		}
		var hello lanHello
		if err := json.Unmarshal(raw, &hello); err != nil || hello.SessionID == "" {
			slog.Debug("LAN connection without hello, dropping")
			conn.Close()
			return
		}
		remoteID = hello.SessionID
		conn.SetReadDeadline(time.Time{})
	}

	l.mu.Lock()
	if _, dup := l.conns[remoteID]; dup {
		l.mu.Unlock()
		conn.Close()
		return
	}
	l.conns[remoteID] = conn
	l.mu.Unlock()

	var writeMu sync.Mutex
	peer := &Peer{
		id:     remoteID,
		source: MDNSSourceURL,
		sendFn: func(data []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return newFramer(nil, conn).writeFrame(data)
		},
	}
	l.handler.PeerConnected(peer)

	for {
		raw, err := f.readFrame()
		if err != nil {
			break
		}
		l.handler.MessageReceived(peer, raw)
	}

	l.mu.Lock()
	delete(l.conns, remoteID)
	l.mu.Unlock()
	conn.Close()
	l.handler.PeerClosed(remoteID)
}

func (l *lanService) close() {
	if l.server != nil {
		l.server.Shutdown()
	}
	l.listener.Close()

	l.mu.Lock()
	for _, conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()

	l.handler.TrackerClosed(MDNSSourceURL)
}

// instanceName derives a short mDNS instance name from the session ID
func instanceName(sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return "tradepost-" + short
}
