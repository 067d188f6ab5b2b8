package writer

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("writer")

const (
	// DefaultFlushEvery is the number of writes after which the sink is flushed
	// even if the queue is not drained
	DefaultFlushEvery = 100_000

	// compactThreshold is the number of consumed slots after which the
	// pending slice is compacted
	compactThreshold = 4096
)

// WriteQueue deduplicates values submitted by any number of goroutines and
// writes every unique value exactly once to a LineSink. Writes happen on a
// single background goroutine in the order in which SubmitIfUnique
// established uniqueness, so callers never wait for I/O.
//
// The sink is flushed after FlushEvery writes and whenever the queue runs
// empty, which bounds the data lost on abrupt termination to one burst.
type WriteQueue struct {
	sink       LineSink
	flushEvery int

	// mu protects the unique-value set and the pending queue, they are
	// always mutated together
	mu      sync.Mutex
	cond    *sync.Cond
	seen    *valueSet
	pending []uint32
	head    int
	closed  bool

	written atomic.Uint64
	failed  atomic.Uint64

	done chan struct{}
	err  error // first sink error, owned by the consumer until done is closed
}

// NewWriteQueue creates a write queue and starts its writer goroutine.
// A flushEvery below 1 selects DefaultFlushEvery.
func NewWriteQueue(sink LineSink, flushEvery int) *WriteQueue {
	if flushEvery < 1 {
		flushEvery = DefaultFlushEvery
	}

	q := &WriteQueue{
		sink:       sink,
		flushEvery: flushEvery,
		seen:       &valueSet{},
		pending:    make([]uint32, 0, 1024),
		done:       make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.consume()

	return q
}

// SubmitIfUnique records value and queues it for writing if it was not seen
// before. Returns true if the value is new.
//
// Thread-safety: This method is thread-safe and never performs I/O.
// Submitting after Close is not supported.
func (q *WriteQueue) SubmitIfUnique(value uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.seen.add(value) {
		return false
	}

	q.pending = append(q.pending, value)
	q.cond.Signal()
	return true
}

// Close lets the writer drain the queue, flushes the sink and waits for the
// writer goroutine to exit. It returns the first error reported by the sink.
// Close may be called more than once.
func (q *WriteQueue) Close() error {
	q.mu.Lock()
	alreadyClosed := q.closed
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	<-q.done

	if !alreadyClosed {
		Logger.Infof("write queue closed: %d unique values written (%d failed)", q.written.Load(), q.failed.Load())
		Logger.Debugf("unique-value set uses %d pages", q.pagesInUse())
	}
	return q.err
}

// Unique returns the number of distinct values submitted so far
func (q *WriteQueue) Unique() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seen.len()
}

// Pending returns the number of values waiting to be written
func (q *WriteQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) - q.head
}

// Written returns the number of values handed to the sink
func (q *WriteQueue) Written() uint64 {
	return q.written.Load()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// consume writes queued values to the sink until the queue is closed and drained
func (q *WriteQueue) consume() {
	defer close(q.done)

	sinceFlush := 0
	for {
		q.mu.Lock()
		// Wait for signal (releases lock while waiting)
		for q.head == len(q.pending) && !q.closed {
			q.cond.Wait()
		}
		if q.head == len(q.pending) {
			// closed and nothing left to write
			q.mu.Unlock()
			break
		}
		value := q.pop()
		drained := q.head == len(q.pending)
		q.mu.Unlock()

		// I/O happens outside the critical section
		q.write(value)
		sinceFlush++

		if sinceFlush >= q.flushEvery || drained {
			q.flush()
			sinceFlush = 0
		}
	}

	q.flush()
}

// pop removes the front of the pending queue, the caller holds mu
func (q *WriteQueue) pop() uint32 {
	value := q.pending[q.head]
	q.head++

	switch {
	case q.head == len(q.pending):
		// queue is empty, reuse the backing array from the start
		q.pending = q.pending[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.pending):
		// more than half of the slice is consumed, move the rest to the front
		n := copy(q.pending, q.pending[q.head:])
		q.pending = q.pending[:n]
		q.head = 0
	}
	return value
}

func (q *WriteQueue) write(value uint32) {
	if err := q.sink.WriteLine(strconv.FormatUint(uint64(value), 10)); err != nil {
		q.fail(err)
		return
	}
	q.written.Add(1)
}

func (q *WriteQueue) flush() {
	if err := q.sink.Flush(); err != nil {
		q.fail(err)
	}
}

// fail records a sink error, only the first one is logged
func (q *WriteQueue) fail(err error) {
	if q.failed.Add(1) == 1 {
		q.err = err
		Logger.Errorf("failed to write to log sink: %v", err)
	}
}

func (q *WriteQueue) pagesInUse() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seen.pagesInUse()
}
