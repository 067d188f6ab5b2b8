package base

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/numlog/lib/common"
	"github.com/ValentinKolb/numlog/lib/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport")

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error

	// ForceClose closes a connection without a graceful shutdown, pending
	// reads on the connection return immediately
	ForceClose(conn net.Conn) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// trackedConn is a registered connection
type trackedConn struct {
	key       uint64
	sessionID string
	conn      net.Conn
	closeOnce sync.Once
}

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	handler   transport.ConnHandleFunc
	config    common.ServerConfig

	// mu guards admission to the registry, the listener and the stopped flag
	mu       sync.Mutex
	listener net.Listener
	stopped  bool

	// conns is the connection registry, it is enumerated without mu
	conns    *xsync.MapOf[uint64, *trackedConn]
	nextKey  atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport using the given connector
func NewBaseServerTransport(connector IServerConnector) transport.IServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[uint64, *trackedConn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ConnHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no connection handler registered")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return fmt.Errorf("%s server transport is stopped", t.connector.GetName())
	}
	if t.listener != nil {
		return fmt.Errorf("%s server transport is already listening", t.connector.GetName())
	}

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener
	t.config = config

	Logger.Infof("Starting %s server on %s with at most %d connections",
		t.connector.GetName(), listener.Addr(), config.MaxConnections)

	go t.acceptLoop(listener)

	return nil
}

func (t *serverTransport) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	listener := t.listener
	t.mu.Unlock()

	// closing the listener ends the accept loop
	if listener != nil {
		if err := listener.Close(); err != nil {
			Logger.Debugf("closing listener: %v", err)
		}
	}

	// sever all registered connections, the handlers exit on their own
	closed := 0
	t.conns.Range(func(_ uint64, tc *trackedConn) bool {
		t.forceClose(tc)
		closed++
		return true
	})

	Logger.Infof("Stopped %s server, force-closed %d connections", t.connector.GetName(), closed)
}

func (t *serverTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Stats() transport.ListenerStats {
	return transport.ListenerStats{
		Accepted: t.accepted.Load(),
		Rejected: t.rejected.Load(),
		Active:   t.conns.Size(),
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// acceptLoop accepts connections until the listener is closed
func (t *serverTransport) acceptLoop(listener net.Listener) {
	var backoff time.Duration

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Case listener closed by Stop: normal end of the loop
			if t.isStopped() || errors.Is(err, net.ErrClosed) {
				Logger.Debugf("accept loop of %s server ended", t.connector.GetName())
				return
			}

			// Case transient error: log and retry with exponential backoff
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			Logger.Errorf("Accept error: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		t.dispatch(conn)
	}
}

// dispatch admits a connection to the registry and starts its worker,
// or closes it right away if the registry is full
func (t *serverTransport) dispatch(conn net.Conn) {
	tc, active, ok := t.register(conn)
	if !ok {
		t.rejected.Add(1)
		Logger.Warningf("Rejected connection from %s (%d of %d connections in use)",
			conn.RemoteAddr(), active, t.config.MaxConnections)
		if err := t.connector.ForceClose(conn); err != nil {
			Logger.Debugf("closing rejected connection: %v", err)
		}
		return
	}
	t.accepted.Add(1)

	// Handle the connection in a goroutine
	go t.handleConnection(tc)
}

// register adds conn to the registry if there is room for it
func (t *serverTransport) register(conn net.Conn) (*trackedConn, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	active := t.conns.Size()
	if t.stopped || active >= t.config.MaxConnections {
		return nil, active, false
	}

	tc := &trackedConn{
		key:       t.nextKey.Add(1),
		sessionID: uuid.NewString(),
		conn:      conn,
	}
	t.conns.Store(tc.key, tc)
	return tc, active + 1, true
}

// release removes a connection from the registry and closes it
func (t *serverTransport) release(tc *trackedConn) {
	t.mu.Lock()
	t.conns.Delete(tc.key)
	t.mu.Unlock()

	t.forceClose(tc)
}

// forceClose shuts a registered connection down exactly once
func (t *serverTransport) forceClose(tc *trackedConn) {
	tc.closeOnce.Do(func() {
		if err := t.connector.ForceClose(tc.conn); err != nil {
			Logger.Debugf("connection %s: close: %v", tc.sessionID, err)
		}
	})
}

// handleConnection runs the handler for one connection. Panics of the
// handler end the connection, not the server.
func (t *serverTransport) handleConnection(tc *trackedConn) {
	defer t.release(tc)
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("connection %s: handler panicked: %v", tc.sessionID, r)
		}
	}()

	if err := t.connector.UpgradeConnection(tc.conn, t.config); err != nil {
		Logger.Warningf("connection %s: failed to apply socket options: %v", tc.sessionID, err)
	}

	Logger.Infof("connection %s from %s accepted", tc.sessionID, tc.conn.RemoteAddr())
	start := time.Now()

	t.handler(tc.sessionID, tc.conn)

	Logger.Infof("connection %s closed after %s", tc.sessionID, time.Since(start).Round(time.Millisecond))
}

func (t *serverTransport) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
