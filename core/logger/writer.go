package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

const defaultLineQueue = 256

// lineWriter fans formatted log lines out to its sinks from one goroutine.
// Sinks are flushed whenever the queue runs dry. A failing sink is dropped so
// the remaining sinks keep receiving lines.
type lineWriter struct {
	lines     chan []byte
	syncReq   chan chan error
	stopped   chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	sinks []*lineSink
}

type lineSink struct {
	buf *bufio.Writer
	err error
}

func newLineWriter(writers []io.Writer, bufSize int) *lineWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	lw := &lineWriter{
		lines:   make(chan []byte, defaultLineQueue),
		syncReq: make(chan chan error),
		stopped: make(chan struct{}),
	}
	for _, w := range writers {
		if w != nil {
			lw.sinks = append(lw.sinks, &lineSink{buf: bufio.NewWriterSize(w, bufSize)})
		}
	}
	go lw.run()
	return lw
}

func (w *lineWriter) run() {
	defer close(w.stopped)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.flush()
				return
			}
			w.write(line)
			if len(w.lines) == 0 {
				w.flush()
			}
		case ack := <-w.syncReq:
			ack <- w.flush()
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full and fails only
// once every sink has failed.
func (w *lineWriter) Write(p []byte) error {
	if err := w.broken(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush blocks until every queued line has reached the sinks.
func (w *lineWriter) Flush() error {
	select {
	case <-w.stopped:
		return w.broken()
	default:
	}
	ack := make(chan error, 1)
	select {
	case w.syncReq <- ack:
		return <-ack
	case <-w.stopped:
		return w.broken()
	}
}

// Close drains the queue, flushes the sinks and reports the first sink error.
func (w *lineWriter) Close() error {
	w.closeOnce.Do(func() { close(w.lines) })
	<-w.stopped
	return w.firstErr()
}

func (w *lineWriter) write(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err != nil {
			continue
		}
		if _, err := s.buf.Write(line); err != nil {
			s.err = err
		}
	}
}

func (w *lineWriter) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, s := range w.sinks {
		if s.err != nil {
			continue
		}
		if err := s.buf.Flush(); err != nil {
			s.err = err
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// broken returns an error when no healthy sink is left.
func (w *lineWriter) broken() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var first error
	for _, s := range w.sinks {
		if s.err == nil {
			return nil
		}
		if first == nil {
			first = s.err
		}
	}
	return first
}

func (w *lineWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err != nil {
			return s.err
		}
	}
	return nil
}
