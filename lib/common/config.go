package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Shared constants
// --------------------------------------------------------------------------

type TransportType string

const (
	TransportTCP  TransportType = "tcp"
	TransportUnix TransportType = "unix"
)

// ParseTransportType converts a string to a TransportType
func ParseTransportType(s string) (TransportType, error) {
	switch TransportType(strings.ToLower(strings.TrimSpace(s))) {
	case TransportTCP:
		return TransportTCP, nil
	case TransportUnix:
		return TransportUnix, nil
	default:
		return "", fmt.Errorf("invalid transport %q (expected one of: tcp, unix)", s)
	}
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a numlog server.
type ServerConfig struct {
	// Transport selects the listening socket type
	Transport TransportType
	// Endpoint is host:port for tcp or the socket path for unix
	Endpoint string
	// MaxConnections is the number of connections served concurrently,
	// excess connections are closed right after accept
	MaxConnections int
	// ReadBufferSize is the socket receive buffer in bytes (0 = OS default)
	ReadBufferSize int

	// LogPath is the file unique numbers are written to (truncated on start)
	LogPath string
	// FlushEvery forces a flush of the log file after this many writes
	FlushEvery int

	// StatusIntervalSecond is the interval between two status reports
	StatusIntervalSecond int

	// MetricsEndpoint is the address of the prometheus endpoint ("" disables it)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Validate checks the configuration for values the server cannot run with
func (c *ServerConfig) Validate() error {
	if _, err := ParseTransportType(string(c.Transport)); err != nil {
		return err
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("max connections must be at least 1, got %d", c.MaxConnections)
	}
	if c.ReadBufferSize < 0 {
		return fmt.Errorf("read buffer size must not be negative, got %d", c.ReadBufferSize)
	}
	if c.LogPath == "" {
		return fmt.Errorf("log path must not be empty")
	}
	if c.FlushEvery < 1 {
		return fmt.Errorf("flush every must be at least 1, got %d", c.FlushEvery)
	}
	if c.StatusIntervalSecond < 1 {
		return fmt.Errorf("status interval must be at least 1 second, got %d", c.StatusIntervalSecond)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Listener settings
	addSection("Listener")
	addField("Transport", string(c.Transport))
	addField("Endpoint", c.Endpoint)
	addField("Max Connections", strconv.Itoa(c.MaxConnections))
	if c.ReadBufferSize > 0 {
		addField("Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize))
	} else {
		addField("Read Buffer", "os default")
	}

	// Write queue
	addSection("Write Queue")
	addField("Log Path", c.LogPath)
	addField("Flush Every", fmt.Sprintf("%d writes", c.FlushEvery))

	// Statistics
	addSection("Statistics")
	addField("Status Interval", fmt.Sprintf("%d sec", c.StatusIntervalSecond))
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	} else {
		addField("Metrics Endpoint", "disabled")
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the load generating client
type ClientConfig struct {
	Transport           TransportType
	Endpoint            string
	Connections         int
	ValuesPerConnection int
	Terminate           bool
	RetryCount          int
	TimeoutSecond       int
}

// Validate checks the client configuration
func (c *ClientConfig) Validate() error {
	if _, err := ParseTransportType(string(c.Transport)); err != nil {
		return err
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.Connections < 1 {
		return fmt.Errorf("connections must be at least 1, got %d", c.Connections)
	}
	if c.ValuesPerConnection < 0 {
		return fmt.Errorf("number of values must not be negative, got %d", c.ValuesPerConnection)
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Transport", string(c.Transport))
	addField("Endpoint", c.Endpoint)
	addField("Connections", strconv.Itoa(c.Connections))
	addField("Values Per Connection", strconv.Itoa(c.ValuesPerConnection))
	addField("Send Terminate", strconv.FormatBool(c.Terminate))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	return sb.String()
}
