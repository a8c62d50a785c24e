package launcher

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// outputMux interleaves the output of all ranks line by line.
type outputMux struct {
	mu      sync.Mutex
	jobID   string
	tag     bool
	writers []*lineWriter
}

func newOutputMux(jobID string, tag bool) *outputMux {
	return &outputMux{jobID: jobID, tag: tag}
}

func (m *outputMux) writer(dest io.Writer, rank int, stream string) *lineWriter {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := &lineWriter{mux: m, dest: dest}
	if m.tag {
		w.prefix = []byte(fmt.Sprintf("[%s,%d]<%s>:", m.jobID, rank, stream))
	}
	m.writers = append(m.writers, w)
	return w
}

// Flush writes out lines that never got their newline.
func (m *outputMux) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.writers {
		if len(w.buf) == 0 {
			continue
		}
		w.buf = append(w.buf, '\n')
		if err := w.writeLine(w.buf); err != nil {
			return err
		}
		w.buf = nil
	}
	return nil
}

type lineWriter struct {
	mux    *outputMux
	dest   io.Writer
	prefix []byte
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mux.mu.Lock()
	defer w.mux.mu.Unlock()

	w.buf = append(w.buf, p...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if err := w.writeLine(w.buf[:i+1]); err != nil {
			return 0, err
		}
		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}

// requires w.mux.mu
func (w *lineWriter) writeLine(line []byte) error {
	if len(w.prefix) > 0 {
		line = append(append([]byte{}, w.prefix...), line...)
	}
	_, err := w.dest.Write(line)
	return err
}
