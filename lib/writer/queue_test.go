package writer

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink records lines and the number of lines at every flush
type memorySink struct {
	mu      sync.Mutex
	lines   []string
	flushes []int

	// optional gate blocking the first WriteLine until closed
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedSink() *memorySink {
	return &memorySink{
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
}

func (s *memorySink) WriteLine(line string) error {
	if s.gate != nil {
		s.once.Do(func() {
			close(s.entered)
			<-s.gate
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

func (s *memorySink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes = append(s.flushes, len(s.lines))
	return nil
}

func (s *memorySink) snapshot() ([]string, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...), append([]int(nil), s.flushes...)
}

type failingSink struct{ err error }

func (s failingSink) WriteLine(string) error { return s.err }
func (s failingSink) Flush() error           { return s.err }

func toLines(values []uint32) []string {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = strconv.FormatUint(uint64(v), 10)
	}
	return lines
}

func TestSubmitIfUnique(t *testing.T) {
	sink := &memorySink{}
	q := NewWriteQueue(sink, 0)

	for i := uint32(0); i < 100; i++ {
		assert.True(t, q.SubmitIfUnique(i), "first submit of %d", i)
	}
	for i := uint32(0); i < 100; i++ {
		assert.False(t, q.SubmitIfUnique(i), "second submit of %d", i)
	}
	assert.Equal(t, 100, q.Unique())

	require.NoError(t, q.Close())

	lines, _ := sink.snapshot()
	assert.Len(t, lines, 100)
	assert.Equal(t, uint64(100), q.Written())
	assert.Zero(t, q.Pending())
}

func TestSubmitBoundaryValues(t *testing.T) {
	sink := &memorySink{}
	q := NewWriteQueue(sink, 0)

	assert.True(t, q.SubmitIfUnique(0))
	assert.True(t, q.SubmitIfUnique(999_999_999))
	assert.False(t, q.SubmitIfUnique(0))
	assert.False(t, q.SubmitIfUnique(999_999_999))
	require.NoError(t, q.Close())

	lines, _ := sink.snapshot()
	assert.Equal(t, []string{"0", "999999999"}, lines)
}

func TestConcurrentSubmitIsUniqueOnce(t *testing.T) {
	const producers = 16
	const values = 10_000

	sink := &memorySink{}
	q := NewWriteQueue(sink, 0)

	var unique atomic.Int64
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < values; i++ {
				// every producer walks the same values from a different start
				v := uint32((i + offset*values/producers) % values)
				if q.SubmitIfUnique(v) {
					unique.Add(1)
				}
			}
		}(p)
	}
	wg.Wait()
	require.NoError(t, q.Close())

	assert.Equal(t, int64(values), unique.Load())

	lines, _ := sink.snapshot()
	require.Len(t, lines, values)
	seen := make(map[string]bool, values)
	for _, l := range lines {
		assert.False(t, seen[l], "value %s written twice", l)
		seen[l] = true
	}
}

func TestWriteOrderEqualsUniqueOrder(t *testing.T) {
	const producers = 8

	sink := &memorySink{}
	q := NewWriteQueue(sink, 7)

	// the test lock makes the order of true results observable
	var mu sync.Mutex
	var order []uint32

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(seed uint32) {
			defer wg.Done()
			for i := uint32(0); i < 2_000; i++ {
				v := (i*7919 + seed*31) % 3_000
				mu.Lock()
				if q.SubmitIfUnique(v) {
					order = append(order, v)
				}
				mu.Unlock()
			}
		}(uint32(p))
	}
	wg.Wait()
	require.NoError(t, q.Close())

	lines, _ := sink.snapshot()
	assert.Equal(t, toLines(order), lines)
}

func TestFlushWhenDrained(t *testing.T) {
	sink := &memorySink{}
	q := NewWriteQueue(sink, 1_000)
	defer q.Close()

	q.SubmitIfUnique(42)

	require.Eventually(t, func() bool {
		_, flushes := sink.snapshot()
		return len(flushes) > 0 && flushes[len(flushes)-1] == 1
	}, time.Second, time.Millisecond)
}

func TestFlushEvery(t *testing.T) {
	sink := newGatedSink()
	q := NewWriteQueue(sink, 3)

	// the writer takes value 0 and blocks inside the sink
	require.True(t, q.SubmitIfUnique(0))
	<-sink.entered

	for v := uint32(1); v < 10; v++ {
		require.True(t, q.SubmitIfUnique(v))
	}
	close(sink.gate)
	require.NoError(t, q.Close())

	lines, flushes := sink.snapshot()
	assert.Len(t, lines, 10)
	// drained after 1, every 3 writes, drained after 10 and once more on close
	assert.Equal(t, []int{1, 4, 7, 10, 10}, flushes)
}

func TestCloseDrainsPending(t *testing.T) {
	sink := newGatedSink()
	q := NewWriteQueue(sink, 0)

	require.True(t, q.SubmitIfUnique(math.MaxUint32))
	<-sink.entered
	for v := uint32(0); v < 5_000; v++ {
		q.SubmitIfUnique(v)
	}
	assert.Equal(t, 5_000, q.Pending())

	closed := make(chan error)
	go func() { closed <- q.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while the writer was blocked")
	case <-time.After(20 * time.Millisecond):
	}

	close(sink.gate)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Close")
	}

	lines, _ := sink.snapshot()
	assert.Len(t, lines, 5_001)
	assert.Equal(t, "4294967295", lines[0])
	assert.Equal(t, "4999", lines[len(lines)-1])
}

func TestCloseIsIdempotent(t *testing.T) {
	q := NewWriteQueue(&memorySink{}, 0)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
}

func TestCloseReturnsSinkError(t *testing.T) {
	boom := errors.New("disk full")
	q := NewWriteQueue(failingSink{err: boom}, 0)

	assert.True(t, q.SubmitIfUnique(1))
	assert.True(t, q.SubmitIfUnique(2))

	assert.ErrorIs(t, q.Close(), boom)
	assert.Zero(t, q.Written())
}

func BenchmarkSubmitIfUnique(b *testing.B) {
	q := NewWriteQueue(&memorySink{}, 0)
	defer q.Close()

	var next atomic.Uint32
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			q.SubmitIfUnique(next.Add(1) % 1_000_000)
		}
	})
}
