package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/numlog/lib/common"
	"github.com/ValentinKolb/numlog/lib/protocol"
	"github.com/ValentinKolb/numlog/lib/transport"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("client")

// progressEvery is the number of values per connection between two progress logs
const progressEvery = 100_000

// ValueSource returns the next value to send. It is called concurrently by
// all connections.
type ValueSource func() uint32

// RandomValues draws values uniformly from [0, protocol.MaxValue]
func RandomValues() uint32 {
	return rand.Uint32N(protocol.MaxValue + 1)
}

// Result summarizes a generator run
type Result struct {
	Sent        uint64
	Connections int
	Terminated  bool
	Duration    time.Duration
	// Rate is the mean number of values sent per second
	Rate float64
}

// Generator opens a number of connections to a numlog server and streams
// values over each of them
type Generator struct {
	config    common.ClientConfig
	transport transport.IClientTransport
	source    ValueSource
	meter     gometrics.Meter
}

// NewGenerator creates a load generator. A nil source sends random values.
func NewGenerator(config common.ClientConfig, t transport.IClientTransport, source ValueSource) *Generator {
	if source == nil {
		source = RandomValues
	}
	return &Generator{
		config:    config,
		transport: t,
		source:    source,
	}
}

// Run connects all connections, sends the configured number of values on
// each of them and, if configured, the terminate command once all values are
// sent. Cancelling ctx closes the connections and ends the run.
func (g *Generator) Run(ctx context.Context) (Result, error) {
	if err := g.config.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid configuration: %w", err)
	}

	g.meter = gometrics.NewMeter()
	defer g.meter.Stop()

	Logger.Infof("%s", g.config.String())

	conns, err := g.connect()
	if err != nil {
		return Result{}, err
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	// severing the connections unblocks writers stuck on a full socket
	stopAfter := context.AfterFunc(ctx, func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	})
	defer stopAfter()

	start := time.Now()

	writers := make([]*protocol.RecordWriter, len(conns))
	errs := make([]error, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		writers[i] = protocol.NewRecordWriter(conn)
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs[id] = g.send(ctx, id, writers[id])
		}(i)
	}
	wg.Wait()

	result := Result{
		Sent:        uint64(g.meter.Count()),
		Connections: len(conns),
	}

	if err := ctx.Err(); err != nil {
		return g.finish(result, start), err
	}
	if err := errors.Join(errs...); err != nil {
		return g.finish(result, start), err
	}

	if g.config.Terminate {
		// the terminate command goes over a connection that already holds a
		// slot on the server, a new one could be rejected
		if err := writers[0].WriteTerminate(); err != nil {
			return g.finish(result, start), fmt.Errorf("failed to send terminate: %w", err)
		}
		result.Terminated = true
		Logger.Infof("terminate command sent")
	}

	return g.finish(result, start), nil
}

// connect opens all connections, on failure the opened ones are closed again
func (g *Generator) connect() ([]net.Conn, error) {
	conns := make([]net.Conn, 0, g.config.Connections)
	for i := 0; i < g.config.Connections; i++ {
		conn, err := g.transport.Connect(g.config)
		if err != nil {
			for _, c := range conns {
				_ = c.Close()
			}
			return nil, fmt.Errorf("connection %d: %w", i, err)
		}
		conns = append(conns, conn)
	}
	Logger.Infof("opened %d %s connections to %s", len(conns), g.transport.GetName(), g.config.Endpoint)
	return conns, nil
}

// send writes the values of one connection
func (g *Generator) send(ctx context.Context, id int, w *protocol.RecordWriter) error {
	for i := 1; i <= g.config.ValuesPerConnection; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.WriteValue(g.source()); err != nil {
			return fmt.Errorf("connection %d: %w", id, err)
		}
		g.meter.Mark(1)

		if i%progressEvery == 0 {
			Logger.Infof("connection %d: sent %d of %d values (%.0f values/s)",
				id, i, g.config.ValuesPerConnection, g.meter.Rate1())
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("connection %d: %w", id, err)
	}
	return nil
}

func (g *Generator) finish(result Result, start time.Time) Result {
	result.Duration = time.Since(start)
	result.Rate = g.meter.RateMean()
	Logger.Infof("sent %d values over %d connections in %s (%.0f values/s)",
		result.Sent, result.Connections, result.Duration.Round(time.Millisecond), result.Rate)
	return result
}
