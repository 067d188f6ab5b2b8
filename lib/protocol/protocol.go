package protocol

import (
	"errors"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("protocol")

const (
	// ValueSize is the number of ascii digits of a record
	ValueSize = 9
	// MaxValue is the largest value that fits into ValueSize digits
	MaxValue uint32 = 999_999_999
)

// ErrValueOutOfRange is returned when encoding a value larger than MaxValue
var ErrValueOutOfRange = errors.New("value does not fit into 9 digits")

// terminateWord is compared case-insensitive against the value part of a record
var terminateWord = []byte("terminate")

// placeValues holds 10^(8-i) for the digit at position i
var placeValues = [ValueSize]uint32{
	100_000_000,
	10_000_000,
	1_000_000,
	100_000,
	10_000,
	1_000,
	100,
	10,
	1,
}

// ChunkSize returns the size of a record for the given line terminator
func ChunkSize(newline []byte) int {
	return ValueSize + len(newline)
}
