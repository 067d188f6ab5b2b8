package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ValentinKolb/numlog/lib/transport"
	"github.com/ValentinKolb/numlog/lib/writer"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics exposes the counters of one server in the prometheus text format
type serverMetrics struct {
	set        *metrics.Set
	unique     *metrics.Counter
	duplicates *metrics.Counter

	listener net.Listener
	server   *http.Server
}

func newServerMetrics(t transport.IServerTransport, queue *writer.WriteQueue) *serverMetrics {
	set := metrics.NewSet()

	m := &serverMetrics{
		set:        set,
		unique:     set.NewCounter("numlog_values_unique_total"),
		duplicates: set.NewCounter("numlog_values_duplicate_total"),
	}

	set.NewGauge("numlog_connections_active", func() float64 {
		return float64(t.Stats().Active)
	})
	set.NewGauge("numlog_connections_accepted_total", func() float64 {
		return float64(t.Stats().Accepted)
	})
	set.NewGauge("numlog_connections_rejected_total", func() float64 {
		return float64(t.Stats().Rejected)
	})
	set.NewGauge("numlog_write_queue_pending", func() float64 {
		return float64(queue.Pending())
	})
	set.NewGauge("numlog_values_distinct", func() float64 {
		return float64(queue.Unique())
	})
	set.NewGauge("numlog_write_queue_written_total", func() float64 {
		return float64(queue.Written())
	})

	return m
}

// listen serves /metrics on endpoint in the background
func (m *serverMetrics) listen(endpoint string) error {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("failed to start metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		m.write(w)
	})

	m.listener = listener
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()

	Logger.Infof("metrics available at http://%s/metrics", listener.Addr())
	return nil
}

func (m *serverMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
}

func (m *serverMetrics) addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *serverMetrics) close() {
	if m.server == nil {
		return
	}
	if err := m.server.Close(); err != nil {
		Logger.Debugf("closing metrics endpoint: %v", err)
	}
}
