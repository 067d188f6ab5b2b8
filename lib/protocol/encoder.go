package protocol

import (
	"bufio"
	"io"
)

// AppendRecord appends value as a zero padded 9 digit record followed by newline
func AppendRecord(dst []byte, value uint32, newline []byte) ([]byte, error) {
	if value > MaxValue {
		return dst, ErrValueOutOfRange
	}
	for i := 0; i < ValueSize; i++ {
		digit := (value / placeValues[i]) % 10
		dst = append(dst, byte('0'+digit))
	}
	return append(dst, newline...), nil
}

// AppendTerminate appends the terminate command followed by newline
func AppendTerminate(dst []byte, newline []byte) []byte {
	dst = append(dst, terminateWord...)
	return append(dst, newline...)
}

// RecordWriter writes records to a buffered stream.
// It is the sending counterpart of the Decoder.
type RecordWriter struct {
	w       *bufio.Writer
	newline []byte
	scratch []byte
}

// NewRecordWriter creates a RecordWriter using the platform's NewLine
func NewRecordWriter(w io.Writer) *RecordWriter {
	return NewRecordWriterWithNewline(w, NewLine)
}

// NewRecordWriterWithNewline creates a RecordWriter using the given line terminator
func NewRecordWriterWithNewline(w io.Writer, newline []byte) *RecordWriter {
	return &RecordWriter{
		w:       bufio.NewWriter(w),
		newline: newline,
		scratch: make([]byte, 0, ChunkSize(newline)),
	}
}

// WriteValue buffers one value record
func (rw *RecordWriter) WriteValue(value uint32) error {
	record, err := AppendRecord(rw.scratch[:0], value, rw.newline)
	if err != nil {
		return err
	}
	_, err = rw.w.Write(record)
	return err
}

// WriteTerminate buffers the terminate command and flushes the stream
func (rw *RecordWriter) WriteTerminate() error {
	if _, err := rw.w.Write(AppendTerminate(rw.scratch[:0], rw.newline)); err != nil {
		return err
	}
	return rw.w.Flush()
}

// Flush writes all buffered records to the underlying stream
func (rw *RecordWriter) Flush() error {
	return rw.w.Flush()
}
