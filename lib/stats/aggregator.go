package stats

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("stats")

// EmitFunc receives one status report line
type EmitFunc func(line string)

// Snapshot is a consistent copy of all counters
type Snapshot struct {
	TotalUnique           uint64
	TotalDuplicates       uint64
	IncrementalUnique     uint64
	IncrementalDuplicates uint64
}

// Aggregator counts unique and duplicate values and periodically emits a
// status report. Incremental counters are reset by every report, totals are
// never reset.
//
// All counter access goes through one mutex: increments exclude each other
// and the snapshot-and-reset of a report, so every increment is attributed to
// exactly one report.
type Aggregator struct {
	mu                    sync.Mutex
	totalUnique           uint64
	totalDuplicates       uint64
	incrementalUnique     uint64
	incrementalDuplicates uint64

	// throughput is informational only and lives outside mu
	throughput gometrics.Meter

	emit EmitFunc

	// reporter lifecycle
	runMu  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewAggregator creates an aggregator emitting reports through emit.
// A nil emit logs the reports at info level.
func NewAggregator(emit EmitFunc) *Aggregator {
	if emit == nil {
		emit = func(line string) { Logger.Infof("%s", line) }
	}
	return &Aggregator{
		emit:       emit,
		throughput: gometrics.NewMeter(),
	}
}

// RecordUnique counts one unique value
//
// Thread-safety: This method is safe for concurrent use
func (a *Aggregator) RecordUnique() {
	a.mu.Lock()
	a.totalUnique++
	a.incrementalUnique++
	a.mu.Unlock()

	a.throughput.Mark(1)
}

// RecordDuplicate counts one duplicate value
//
// Thread-safety: This method is safe for concurrent use
func (a *Aggregator) RecordDuplicate() {
	a.mu.Lock()
	a.totalDuplicates++
	a.incrementalDuplicates++
	a.mu.Unlock()

	a.throughput.Mark(1)
}

// Snapshot returns the current counters without resetting anything
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		TotalUnique:           a.totalUnique,
		TotalDuplicates:       a.totalDuplicates,
		IncrementalUnique:     a.incrementalUnique,
		IncrementalDuplicates: a.incrementalDuplicates,
	}
}

// Report writes the status line to w and resets the incremental counters.
// The counters are read and reset in one step, the write happens afterwards.
// If the write fails the counts are handed back to the next report.
func (a *Aggregator) Report(w io.Writer) error {
	a.mu.Lock()
	incrementalUnique := a.incrementalUnique
	incrementalDuplicates := a.incrementalDuplicates
	totalUnique := a.totalUnique
	a.incrementalUnique = 0
	a.incrementalDuplicates = 0
	a.mu.Unlock()

	line := fmt.Sprintf("Received %d unique numbers, %d duplicates. Unique total: %d",
		incrementalUnique, incrementalDuplicates, totalUnique)
	if _, err := io.WriteString(w, line); err != nil {
		a.mu.Lock()
		a.incrementalUnique += incrementalUnique
		a.incrementalDuplicates += incrementalDuplicates
		a.mu.Unlock()
		return err
	}
	return nil
}

// Emit produces one report and hands it to the EmitFunc
func (a *Aggregator) Emit() {
	var sb strings.Builder
	// writing to a strings.Builder does not fail
	_ = a.Report(&sb)
	a.emit(sb.String())

	Logger.Debugf("throughput: %.1f values/s (1m), %.1f values/s (mean)",
		a.throughput.Rate1(), a.throughput.RateMean())
}

// Start emits a report every interval until Stop is called. Starting a
// running aggregator has no effect.
func (a *Aggregator) Start(interval time.Duration) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.stopCh != nil {
		Logger.Warningf("status reporter already running")
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.run(interval, a.stopCh, a.doneCh)

	Logger.Infof("status reports every %s", interval)
}

// Stop ends the periodic reports and waits for the reporter goroutine.
// It is safe to call Stop on an aggregator that was never started or is
// already stopped.
func (a *Aggregator) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.stopCh == nil {
		return
	}
	close(a.stopCh)
	<-a.doneCh
	a.stopCh = nil
	a.doneCh = nil
}

// Close stops the reporter and releases the throughput meter
func (a *Aggregator) Close() {
	a.Stop()
	a.throughput.Stop()
}

// run is the reporter loop, the stop channel wakes it early
func (a *Aggregator) run(interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			a.Emit()
		}
	}
}
