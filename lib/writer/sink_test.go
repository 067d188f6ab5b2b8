package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/numlog/lib/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numbers.log")

	// stale content is truncated
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	sink, err := OpenFileSink(path)
	require.NoError(t, err)
	assert.Equal(t, path, sink.Name())

	require.NoError(t, sink.WriteLine("3456789"))
	require.NoError(t, sink.WriteLine("123456789"))
	require.NoError(t, sink.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	nl := string(protocol.NewLine)
	assert.Equal(t, "3456789"+nl+"123456789"+nl, string(content))
}

func TestFileSinkWithQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numbers.log")
	sink, err := OpenFileSink(path)
	require.NoError(t, err)

	q := NewWriteQueue(sink, 2)
	for _, v := range []uint32{5, 7, 5, 9, 7} {
		q.SubmitIfUnique(v)
	}
	require.NoError(t, q.Close())
	require.NoError(t, sink.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	nl := string(protocol.NewLine)
	assert.Equal(t, "5"+nl+"7"+nl+"9"+nl, string(content))
}

func TestOpenFileSinkFails(t *testing.T) {
	_, err := OpenFileSink(filepath.Join(t.TempDir(), "missing", "numbers.log"))
	assert.Error(t, err)
}
