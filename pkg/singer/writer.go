package singer

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/compression"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
)

const defaultBufferSize = 64 * 1024

type flusher interface {
	Flush() error
}

// Stats counts the messages written.
type Stats struct {
	Schemas int64
	Records int64
	States  int64
}

// Writer serializes Singer messages. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	comp   io.WriteCloser
	file   io.Closer
	enc    *json.LineEncoder
	stats  Stats
	closed bool
}

// NewWriter writes uncompressed messages to w. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriterSize(w, defaultBufferSize)
	return &Writer{buf: buf, enc: json.NewLineEncoder(buf)}
}

// Open returns a writer for path. "" and "-" mean stdout; otherwise the
// file is created and compressed according to its extension.
func Open(path string, level compression.Level) (*Writer, error) {
	if path == "" || path == "-" {
		return NewWriter(os.Stdout), nil
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").
			WithDetail("path", path)
	}

	comp, err := compression.NewWriter(file, compression.FromExtension(path), level)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compression writer")
	}

	buf := bufio.NewWriterSize(comp, defaultBufferSize)
	return &Writer{
		buf:  buf,
		comp: comp,
		file: file,
		enc:  json.NewLineEncoder(buf),
	}, nil
}

func (w *Writer) write(v interface{}) error {
	if w.closed {
		return errors.New(errors.ErrorTypeInternal, "writer is closed")
	}
	if err := w.enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write message")
	}
	return nil
}

// WriteSchema writes a SCHEMA message.
func (w *Writer) WriteSchema(msg SchemaMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.write(msg); err != nil {
		return err
	}
	w.stats.Schemas++
	return nil
}

// WriteRecord writes a RECORD message for stream.
func (w *Writer) WriteRecord(stream string, record map[string]interface{}, extracted time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.write(NewRecordMessage(stream, record, extracted)); err != nil {
		return err
	}
	w.stats.Records++
	return nil
}

// WriteState writes a STATE message and flushes, so everything before the
// state is durable once it is observed downstream.
func (w *Writer) WriteState(value interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.write(NewStateMessage(value)); err != nil {
		return err
	}
	w.stats.States++
	return w.flush()
}

// Flush writes buffered messages through to the output.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

func (w *Writer) flush() error {
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	if f, ok := w.comp.(flusher); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush compressor")
		}
	}
	return nil
}

// Stats returns the message counts.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Close flushes and closes the compressor and file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	if w.comp != nil {
		if err := w.comp.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to close compressor")
		}
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
