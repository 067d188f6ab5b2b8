package writer

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/ValentinKolb/numlog/lib/protocol"
)

const fileBufferSize = 64 * 1024 // 64 KB

// LineSink is an append-only text sink
type LineSink interface {
	// WriteLine appends line followed by a line terminator
	WriteLine(line string) error
	// Flush hands all buffered lines to the underlying storage
	Flush() error
}

// FileSink is a LineSink writing to a file. The file is truncated when opened,
// it is written once per run and never replayed.
//
// Thread-safety: not safe for concurrent use, the WriteQueue is its only writer.
type FileSink struct {
	file *os.File
	w    *bufio.Writer
}

// OpenFileSink creates (or truncates) the file at path
func OpenFileSink(path string) (*FileSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &FileSink{
		file: file,
		w:    bufio.NewWriterSize(file, fileBufferSize),
	}, nil
}

func (s *FileSink) WriteLine(line string) error {
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	_, err := s.w.Write(protocol.NewLine)
	return err
}

func (s *FileSink) Flush() error {
	return s.w.Flush()
}

// Close flushes the buffer and closes the file
func (s *FileSink) Close() error {
	return errors.Join(s.w.Flush(), s.file.Close())
}

// Name returns the path of the file
func (s *FileSink) Name() string {
	return s.file.Name()
}
