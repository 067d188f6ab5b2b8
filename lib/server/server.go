package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/numlog/lib/common"
	"github.com/ValentinKolb/numlog/lib/protocol"
	"github.com/ValentinKolb/numlog/lib/stats"
	"github.com/ValentinKolb/numlog/lib/transport"
	"github.com/ValentinKolb/numlog/lib/writer"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("server")

var (
	ErrServerStarted = errors.New("server is already started")
	ErrServerStopped = errors.New("server is stopped")
)

// Server wires the listener, the protocol decoder, the write queue and the
// statistics aggregator together and owns their lifecycle.
//
// Usage:
//
//	sink, err := writer.OpenFileSink(config.LogPath)
//	if err != nil {
//		return err
//	}
//
//	s := server.NewServer(*config, tcp.NewTCPServerTransport(), sink)
//	return s.Serve()
type Server struct {
	config    common.ServerConfig
	transport transport.IServerTransport
	sink      writer.LineSink

	queue   *writer.WriteQueue
	stats   *stats.Aggregator
	metrics *serverMetrics

	// done is closed once shutdown was requested
	done     chan struct{}
	doneOnce sync.Once

	// workerMu orders workers.Add against workers.Wait in Stop
	workerMu sync.Mutex
	stopping bool
	workers  sync.WaitGroup

	// lifecycleMu serializes Start and Stop
	lifecycleMu sync.Mutex
	started     bool
	running     bool // set once the listener is bound
	stopped     bool
	stopErr     error
}

// NewServer creates a server reading from connections of t and writing unique
// values to sink. The server takes ownership of sink, it is closed by Stop if
// it implements io.Closer.
func NewServer(config common.ServerConfig, t transport.IServerTransport, sink writer.LineSink) *Server {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &Server{
		config:    config,
		transport: t,
		sink:      sink,
		stats:     stats.NewAggregator(nil),
		done:      make(chan struct{}),
	}
}

// Start validates the configuration, starts the status reporter, the writer
// and the metrics endpoint and binds the listener. It returns once the server
// accepts connections. A failed start releases everything that was started.
func (s *Server) Start() error {
	if err := s.start(); err != nil {
		if !errors.Is(err, ErrServerStarted) && !errors.Is(err, ErrServerStopped) {
			_ = s.Stop()
		}
		return err
	}
	return nil
}

func (s *Server) start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.stopped {
		return ErrServerStopped
	}
	if s.started {
		return ErrServerStarted
	}
	s.started = true

	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	Logger.Infof("Starting numlog server")
	Logger.Infof("%s", s.config.String())

	if named, ok := s.sink.(interface{ Name() string }); ok {
		Logger.Infof("writing unique values to %s", named.Name())
	}

	s.queue = writer.NewWriteQueue(s.sink, s.config.FlushEvery)
	s.stats.Start(time.Duration(s.config.StatusIntervalSecond) * time.Second)

	s.metrics = newServerMetrics(s.transport, s.queue)
	if s.config.MetricsEndpoint != "" {
		if err := s.metrics.listen(s.config.MetricsEndpoint); err != nil {
			return err
		}
	}

	s.transport.RegisterHandler(s.handleConnection)
	if err := s.transport.Listen(s.config); err != nil {
		return err
	}
	s.running = true

	return nil
}

// Done returns a channel that is closed once shutdown was requested, either
// by a terminate command or by Shutdown
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Shutdown requests a shutdown without waiting for it. It may be called any
// number of times from any goroutine, connection handlers included.
func (s *Server) Shutdown() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// Stop shuts the server down: the listener is stopped and all connections are
// severed, then the workers are awaited, the write queue is drained into the
// sink, the sink is closed and a final status report is emitted.
// Stop is idempotent and returns the same error on every call.
func (s *Server) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.stopped {
		return s.stopErr
	}
	s.stopped = true
	s.Shutdown()

	var errs []error

	// 1. no new connections, unblock the reads of the running workers
	s.transport.Stop()

	// 2. wait for the workers, afterwards nobody submits to the queue
	s.workerMu.Lock()
	s.stopping = true
	s.workerMu.Unlock()
	s.workers.Wait()

	// 3. write everything that is still queued
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to write log: %w", err))
		}
	}

	// 4. the sink belongs to the server from NewServer on
	if closer, ok := s.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log: %w", err))
		}
	}

	// 5. final report with whatever was counted since the last one, a server
	// that never accepted connections has nothing to report
	s.stats.Stop()
	if s.running {
		s.stats.Emit()
	}
	s.stats.Close()

	// 6. metrics endpoint
	if s.metrics != nil {
		s.metrics.close()
	}

	s.stopErr = errors.Join(errs...)
	if s.stopErr != nil {
		Logger.Errorf("server stopped with errors: %v", s.stopErr)
	} else {
		Logger.Infof("server stopped")
	}
	return s.stopErr
}

// Serve starts the server and blocks until a terminate command is received or
// the process gets SIGINT/SIGTERM, then stops the server
func (s *Server) Serve() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-s.done:
		Logger.Infof("shutdown requested")
	case sig := <-sigCh:
		Logger.Infof("received %s, shutting down", sig)
	}

	return s.Stop()
}

// Addr returns the address of the listener (nil if the server is not listening)
func (s *Server) Addr() net.Addr {
	return s.transport.Addr()
}

// MetricsAddr returns the address of the metrics endpoint (nil if disabled)
func (s *Server) MetricsAddr() net.Addr {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.metrics == nil {
		return nil
	}
	return s.metrics.addr()
}

// Stats returns the current counters of the statistics aggregator
func (s *Server) Stats() stats.Snapshot {
	return s.stats.Snapshot()
}

// --------------------------------------------------------------------------
// Connection handling
// --------------------------------------------------------------------------

// handleConnection decodes one connection until it ends, fails or sends the
// terminate command
func (s *Server) handleConnection(sessionID string, conn net.Conn) {
	if !s.enterWorker() {
		return
	}
	defer s.workers.Done()

	var values uint64
	decoder := protocol.NewDecoder(conn)
	reason := decoder.Read(
		func(value uint32) {
			values++
			s.submit(value)
		},
		func() {
			Logger.Infof("connection %s: terminate command received", sessionID)
			// Stop waits for this worker, so only request the shutdown here
			s.Shutdown()
		},
	)

	switch reason {
	case protocol.StopMalformed:
		Logger.Warningf("connection %s: malformed record after %d values, closing connection", sessionID, values)
	case protocol.StopEndOfStream:
		if err := decoder.Err(); err != nil {
			Logger.Debugf("connection %s: read failed after %d values: %v", sessionID, values, err)
		} else {
			Logger.Debugf("connection %s: end of stream after %d values", sessionID, values)
		}
	}
}

// submit routes the uniqueness decision of the write queue to the counters
func (s *Server) submit(value uint32) {
	if s.queue.SubmitIfUnique(value) {
		s.stats.RecordUnique()
		s.metrics.unique.Inc()
	} else {
		s.stats.RecordDuplicate()
		s.metrics.duplicates.Inc()
	}
}

// enterWorker registers a running worker, it fails once Stop waits for them
func (s *Server) enterWorker() bool {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()
	if s.stopping {
		return false
	}
	s.workers.Add(1)
	return true
}
