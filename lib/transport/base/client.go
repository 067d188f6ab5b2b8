package base

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/ValentinKolb/numlog/lib/common"
	"github.com/ValentinKolb/numlog/lib/transport"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// clientTransport implements the connection setup independent of the
// specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
}

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) GetName() string {
	return t.connector.GetName()
}

func (t *clientTransport) Connect(config common.ClientConfig) (net.Conn, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint provided")
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second

	// We always try at least once, and up to maxRetries times
	maxRetries := config.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		conn, err := t.connector.Connect(config.Endpoint, timeout)
		if err == nil {
			return conn, nil
		}

		lastErr = err
		Logger.Debugf("Connect attempt %d/%d to %s failed: %v", i+1, maxRetries, config.Endpoint, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", config.Endpoint, maxRetries, lastErr)
}
