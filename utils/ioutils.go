package utils

import (
	"errors"
	"io"
	"sync"
)

var ErrShortWrite = errors.New("short write")

type asyncMultiWriter struct {
	writers []io.Writer
}

// AsyncMultiWriter creates a writer that duplicates each write to all writers concurrently.
func AsyncMultiWriter(writers ...io.Writer) io.Writer {
	w := make([]io.Writer, len(writers))
	copy(w, writers)
	return &asyncMultiWriter{w}
}

// Write returns once every writer is done with p. The first failure is returned.
func (t *asyncMultiWriter) Write(p []byte) (int, error) {
	var wg sync.WaitGroup
	errs := make([]error, len(t.writers))
	for i, w := range t.writers {
		wg.Add(1)
		go func(i int, w io.Writer) {
			defer wg.Done()
			n, err := w.Write(p)
			if err == nil && n != len(p) {
				err = ErrShortWrite
			}
			errs[i] = err
		}(i, w)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
