package protocol

import (
	"bytes"
	"errors"
	"io"
)

// StopReason describes why a Decoder stopped producing values
type StopReason int

const (
	// StopNone means the decoder has not stopped yet
	StopNone StopReason = iota
	// StopEndOfStream means the source was closed or failed, a partial record is discarded
	StopEndOfStream
	// StopMalformed means a complete record was neither a value nor the terminate command
	StopMalformed
	// StopTerminate means the terminate command was received
	StopTerminate
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "running"
	case StopEndOfStream:
		return "end of stream"
	case StopMalformed:
		return "malformed record"
	case StopTerminate:
		return "terminate command"
	default:
		return "unknown"
	}
}

// Decoder turns a byte stream into a finite sequence of values.
// Every record is read into the same fixed size buffer, the numeric path
// does not allocate.
//
// A Decoder is not safe for concurrent use and cannot be restarted once it
// stopped.
type Decoder struct {
	src     io.Reader
	newline []byte
	buf     []byte
	reason  StopReason
	err     error
}

// NewDecoder creates a decoder expecting records terminated by the platform's NewLine
func NewDecoder(src io.Reader) *Decoder {
	return NewDecoderWithNewline(src, NewLine)
}

// NewDecoderWithNewline creates a decoder expecting the given line terminator.
// The terminator is typically "\n" or "\r\n".
func NewDecoderWithNewline(src io.Reader, newline []byte) *Decoder {
	return &Decoder{
		src:     src,
		newline: newline,
		buf:     make([]byte, ChunkSize(newline)),
	}
}

// Next decodes the next record. It returns false once the decoder stopped,
// Reason tells why.
func (d *Decoder) Next() (uint32, bool) {
	if d.reason != StopNone {
		return 0, false
	}

	if !d.readChunk() {
		d.reason = StopEndOfStream
		return 0, false
	}

	if value, ok := d.decodeValue(); ok {
		return value, true
	}

	if d.isTerminate() {
		d.reason = StopTerminate
	} else {
		d.reason = StopMalformed
		Logger.Debugf("malformed record %q", d.buf)
	}
	return 0, false
}

// Read calls onValue for every decoded value in arrival order. If the stream
// carries the terminate command, onTerminate is called (if not nil) and
// reading stops. Read returns when the decoder stopped.
func (d *Decoder) Read(onValue func(value uint32), onTerminate func()) StopReason {
	for {
		value, ok := d.Next()
		if !ok {
			break
		}
		if onValue != nil {
			onValue(value)
		}
	}

	if d.reason == StopTerminate && onTerminate != nil {
		onTerminate()
	}
	return d.reason
}

// Reason returns why the decoder stopped (StopNone while still running)
func (d *Decoder) Reason() StopReason {
	return d.reason
}

// Err returns the error of the source that ended the stream, io.EOF is not reported
func (d *Decoder) Err() error {
	return d.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readChunk fills the buffer with exactly one record. The source may deliver
// a record in several parts. Returns false if the source ended before the
// record was complete.
func (d *Decoder) readChunk() bool {
	offset := 0
	for offset < len(d.buf) {
		n, err := d.src.Read(d.buf[offset:])
		offset += n

		if offset == len(d.buf) {
			return true
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.err = err
			}
			return false
		}
		// zero bytes without an error: the peer is gone
		if n == 0 {
			return false
		}
	}
	return true
}

// decodeValue interprets the buffer as 9 digits followed by the line terminator
func (d *Decoder) decodeValue() (uint32, bool) {
	for i, b := range d.newline {
		if d.buf[ValueSize+i] != b {
			return 0, false
		}
	}

	var value uint32
	for i := 0; i < ValueSize; i++ {
		b := d.buf[i]
		if b < '0' || b > '9' {
			return 0, false
		}
		value += uint32(b-'0') * placeValues[i]
	}
	return value, true
}

// isTerminate checks whether the buffer holds the terminate command
func (d *Decoder) isTerminate() bool {
	if first := d.buf[0]; first != 't' && first != 'T' {
		return false
	}
	return bytes.EqualFold(d.buf[:ValueSize], terminateWord) &&
		bytes.Equal(d.buf[ValueSize:], d.newline)
}
