package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ValentinKolb/numlog/lib/common"
	"github.com/ValentinKolb/numlog/lib/protocol"
	"github.com/ValentinKolb/numlog/lib/stats"
	"github.com/ValentinKolb/numlog/lib/transport/tcp"
	"github.com/ValentinKolb/numlog/lib/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink records all lines, Close is tracked to check the shutdown order
type memorySink struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (s *memorySink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("write after close")
	}
	s.lines = append(s.lines, line)
	return nil
}

func (s *memorySink) Flush() error { return nil }

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func testConfig(maxConnections int) common.ServerConfig {
	return common.ServerConfig{
		Transport:            common.TransportTCP,
		Endpoint:             "127.0.0.1:0",
		MaxConnections:       maxConnections,
		LogPath:              "numbers.log",
		FlushEvery:           10,
		StatusIntervalSecond: 60,
		LogLevel:             "error",
	}
}

func startServer(t *testing.T, config common.ServerConfig) (*Server, *memorySink) {
	t.Helper()
	sink := &memorySink{}
	s := NewServer(config, tcp.NewTCPServerTransport(), sink)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s, sink
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, values ...uint32) {
	t.Helper()
	w := protocol.NewRecordWriter(conn)
	for _, v := range values {
		require.NoError(t, w.WriteValue(v))
	}
	require.NoError(t, w.Flush())
}

func waitClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(t, netErr.Timeout(), "connection was not closed by the server")
	}
}

func TestDeduplicatesAcrossConnections(t *testing.T) {
	s, sink := startServer(t, testConfig(4))

	first := dial(t, s)
	second := dial(t, s)

	send(t, first, 3456789, 23456789, 123456789)
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return s.Stats().TotalUnique == 3 }, 2*time.Second, time.Millisecond)

	send(t, second, 123456789, 1, 3456789, 1)
	require.NoError(t, second.Close())
	require.Eventually(t, func() bool {
		snap := s.Stats()
		return snap.TotalUnique+snap.TotalDuplicates == 7
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, s.Stop())

	assert.Equal(t, []string{"3456789", "23456789", "123456789", "1"}, sink.snapshot())

	snap := s.Stats()
	assert.Equal(t, uint64(4), snap.TotalUnique)
	assert.Equal(t, uint64(3), snap.TotalDuplicates)
}

func TestTerminateStopsServer(t *testing.T) {
	s, sink := startServer(t, testConfig(2))

	conn := dial(t, s)
	w := protocol.NewRecordWriter(conn)
	require.NoError(t, w.WriteValue(42))
	require.NoError(t, w.WriteValue(7))
	require.NoError(t, w.WriteTerminate())
	// nothing after the terminate command is decoded
	require.NoError(t, w.WriteValue(99))
	require.NoError(t, w.Flush())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("terminate did not request a shutdown")
	}

	require.NoError(t, s.Stop())
	assert.Equal(t, []string{"42", "7"}, sink.snapshot())
	assert.True(t, sink.closed)
}

func TestStopSeversIdleConnections(t *testing.T) {
	s, _ := startServer(t, testConfig(2))

	conn := dial(t, s)
	send(t, conn, 5)
	require.Eventually(t, func() bool { return s.Stats().TotalUnique == 1 }, 2*time.Second, time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked on an idle connection")
	}
	waitClosed(t, conn)
}

func TestMalformedRecordClosesOnlyThatConnection(t *testing.T) {
	s, sink := startServer(t, testConfig(2))

	bad := dial(t, s)
	_, err := bad.Write([]byte("12345678\n000000001" + string(protocol.NewLine)))
	require.NoError(t, err)
	waitClosed(t, bad)

	good := dial(t, s)
	send(t, good, 2)
	require.Eventually(t, func() bool { return s.Stats().TotalUnique == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Equal(t, []string{"2"}, sink.snapshot())
}

func TestExcessConnectionsAreRejected(t *testing.T) {
	s, _ := startServer(t, testConfig(1))

	held := dial(t, s)
	send(t, held, 1)
	require.Eventually(t, func() bool { return s.Stats().TotalUnique == 1 }, 2*time.Second, time.Millisecond)

	// a rejected connection may already be reset while dialing
	excess, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	if !errors.Is(err, syscall.ECONNRESET) {
		require.NoError(t, err)
		defer excess.Close()
		waitClosed(t, excess)
	}

	require.Eventually(t, func() bool { return s.transport.Stats().Rejected == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, s.transport.Stats().Active)
}

func TestStopIsIdempotent(t *testing.T) {
	s, sink := startServer(t, testConfig(1))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.True(t, sink.closed)
	assert.ErrorIs(t, s.Start(), ErrServerStopped)
}

func TestStartFailures(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		config := testConfig(0)
		sink := &memorySink{}
		s := NewServer(config, tcp.NewTCPServerTransport(), sink)
		assert.Error(t, s.Start())
		assert.True(t, sink.closed)
	})

	t.Run("port in use", func(t *testing.T) {
		occupied, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer occupied.Close()

		config := testConfig(1)
		config.Endpoint = occupied.Addr().String()
		s := NewServer(config, tcp.NewTCPServerTransport(), &memorySink{})
		assert.Error(t, s.Start())
	})

	t.Run("metrics endpoint in use", func(t *testing.T) {
		occupied, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer occupied.Close()

		config := testConfig(1)
		config.MetricsEndpoint = occupied.Addr().String()
		s := NewServer(config, tcp.NewTCPServerTransport(), &memorySink{})
		assert.Error(t, s.Start())
		assert.Nil(t, s.Addr())
	})

	t.Run("started twice", func(t *testing.T) {
		s, _ := startServer(t, testConfig(1))
		assert.ErrorIs(t, s.Start(), ErrServerStarted)
		// the running server is not affected
		assert.NotNil(t, s.Addr())
		dial(t, s)
	})
}

// recordReports replaces the aggregator of s with one collecting its reports
func recordReports(s *Server) *[]string {
	var mu sync.Mutex
	var lines []string
	s.stats.Close()
	s.stats = stats.NewAggregator(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	})
	return &lines
}

func TestFinalReportOnlyAfterSuccessfulStart(t *testing.T) {
	t.Run("failed start", func(t *testing.T) {
		s := NewServer(testConfig(0), tcp.NewTCPServerTransport(), &memorySink{})
		lines := recordReports(s)

		require.Error(t, s.Start())
		require.NoError(t, s.Stop())
		assert.Empty(t, *lines)
	})

	t.Run("stopped after serving", func(t *testing.T) {
		s := NewServer(testConfig(1), tcp.NewTCPServerTransport(), &memorySink{})
		lines := recordReports(s)
		require.NoError(t, s.Start())

		conn := dial(t, s)
		send(t, conn, 8, 8)
		require.Eventually(t, func() bool { return s.Stats().TotalDuplicates == 1 }, 2*time.Second, time.Millisecond)

		require.NoError(t, s.Stop())
		assert.Equal(t, []string{"Received 1 unique numbers, 1 duplicates. Unique total: 1"}, *lines)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	config := testConfig(2)
	config.MetricsEndpoint = "127.0.0.1:0"
	s, _ := startServer(t, config)

	conn := dial(t, s)
	send(t, conn, 1, 2, 2)
	require.Eventually(t, func() bool { return s.Stats().TotalDuplicates == 1 }, 2*time.Second, time.Millisecond)

	addr := s.MetricsAddr()
	require.NotNil(t, addr)

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	metrics := parseMetrics(string(body))
	assert.Equal(t, 2.0, metrics["numlog_values_unique_total"])
	assert.Equal(t, 1.0, metrics["numlog_values_duplicate_total"])
	assert.Equal(t, 1.0, metrics["numlog_connections_active"])
	assert.Equal(t, 1.0, metrics["numlog_connections_accepted_total"])
	assert.Equal(t, 2.0, metrics["numlog_values_distinct"])
	assert.Contains(t, metrics, "numlog_write_queue_pending")
}

func TestFileSinkEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numbers.log")
	sink, err := writer.OpenFileSink(path)
	require.NoError(t, err)

	config := testConfig(2)
	config.LogPath = path
	s := NewServer(config, tcp.NewTCPServerTransport(), sink)
	require.NoError(t, s.Start())

	conn := dial(t, s)
	send(t, conn, 10, 20, 10, 30)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		snap := s.Stats()
		return snap.TotalUnique+snap.TotalDuplicates == 4
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, s.Stop())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	nl := string(protocol.NewLine)
	assert.Equal(t, "10"+nl+"20"+nl+"30"+nl, string(content))
}

func TestMain(m *testing.M) {
	if err := common.InitLoggers("error"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// parseMetrics reads the sample lines of the prometheus text format
func parseMetrics(body string) map[string]float64 {
	result := make(map[string]float64)
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || strings.HasPrefix(line, "#") {
			continue
		}
		if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
			result[fields[0]] = v
		}
	}
	return result
}
