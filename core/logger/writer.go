package logger

import (
	"io"
	"sync"
)

// asyncWriter decouples log writes from the sink. When the buffer is full
// the write blocks rather than dropping the line.
type asyncWriter struct {
	dst  io.Writer
	ch   chan []byte
	done chan struct{}
	once sync.Once
	mu   sync.RWMutex
	shut bool
}

func newAsyncWriter(dst io.Writer, size int) *asyncWriter {
	w := &asyncWriter{dst: dst, ch: make(chan []byte, size), done: make(chan struct{})}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for line := range w.ch {
		_, _ = w.dst.Write(line)
	}
}

func (w *asyncWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.shut {
		return w.dst.Write(p)
	}
	w.ch <- append([]byte(nil), p...)
	return len(p), nil
}

// Close drains pending lines. Writes after Close go straight to the sink.
func (w *asyncWriter) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.shut = true
		close(w.ch)
		w.mu.Unlock()
		<-w.done
	})
	return nil
}
