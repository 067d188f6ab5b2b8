package transport

import (
	"net"

	"github.com/ValentinKolb/numlog/lib/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ConnHandleFunc serves one accepted connection.
// The handler owns the connection until it returns, afterwards the transport
// removes it from the registry and closes it. sessionID identifies the
// connection in logs.
type ConnHandleFunc func(sessionID string, conn net.Conn)

// ListenerStats are the counters of a server transport
type ListenerStats struct {
	Accepted uint64
	Rejected uint64
	Active   int
}

// IServerTransport is the interface for the connection listener/dispatcher
type IServerTransport interface {
	// RegisterHandler registers the handler called for every accepted connection
	RegisterHandler(handler ConnHandleFunc)
	// Listen binds the listening socket and starts the accept loop in the
	// background. It returns once the socket is bound.
	Listen(config common.ServerConfig) error
	// Stop closes the listening socket and force-closes all registered
	// connections. It does not wait for handlers to return and may be
	// called any number of times from any goroutine.
	Stop()
	// Addr returns the address of the listening socket (nil before Listen)
	Addr() net.Addr
	// Stats returns the accepted, rejected and active connection counts
	Stats() ListenerStats
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IClientTransport is the interface for the client side of a transport
type IClientTransport interface {
	// Connect opens one connection to the configured endpoint, retrying
	// according to the configuration
	Connect(config common.ClientConfig) (net.Conn, error)
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
