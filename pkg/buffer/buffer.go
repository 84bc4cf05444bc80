// Package buffer provides a bounded blocking FIFO used to hand elements
// from a producer goroutine to a consumer one at a time.
package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrDone is returned by Next after the write side is closed and all
// buffered elements have been consumed.
var ErrDone = errors.New("buffer: done")

// FIFO is a thread-safe bounded queue. Add blocks while the queue is
// full and Next blocks while it is empty, so a slow consumer throttles
// the producer instead of the queue growing without bound.
type FIFO[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error
}

// New creates a FIFO holding at most size elements.
func New[T any](size int) *FIFO[T] {
	if size <= 0 {
		size = 1
	}
	f := &FIFO[T]{buf: make([]T, size)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Add appends one element, blocking while the queue is full.
func (f *FIFO[T]) Add(t T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closeErr != nil {
			return fmt.Errorf("buffer: add to closed buffer: %w", f.closeErr)
		}
		if f.closeWrite {
			return fmt.Errorf("buffer: add to closed buffer: %w", io.ErrClosedPipe)
		}
		if f.tail-f.head < int64(len(f.buf)) {
			break
		}
		f.cond.Wait()
	}
	f.buf[f.tail%int64(len(f.buf))] = t
	f.tail++
	f.cond.Signal()
	return nil
}

// Next removes and returns the oldest element, blocking while the queue
// is empty. Returns ErrDone once the write side is closed and drained.
func (f *FIFO[T]) Next() (t T, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.head == f.tail {
		if f.closeErr != nil {
			err = fmt.Errorf("buffer: next from closed buffer: %w", f.closeErr)
			return
		}
		if f.closeWrite {
			err = ErrDone
			return
		}
		f.cond.Wait()
	}
	if f.closeErr != nil {
		err = fmt.Errorf("buffer: next from closed buffer: %w", f.closeErr)
		return
	}
	t = f.buf[f.head%int64(len(f.buf))]
	f.head++
	f.cond.Signal()
	return t, nil
}

// CloseWrite marks the end of the stream. Buffered elements remain
// readable; once drained, Next returns ErrDone.
func (f *FIFO[T]) CloseWrite() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeWrite {
		return nil
	}
	f.closeWrite = true
	f.cond.Broadcast()
	return nil
}

// CloseWithError tears down both sides immediately. Blocked Add and
// Next calls are released and return the error. A nil err is replaced
// with io.ErrClosedPipe.
func (f *FIFO[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return nil
	}
	f.closeErr = err
	f.closeWrite = true
	f.cond.Broadcast()
	return nil
}

// Close is CloseWithError(io.ErrClosedPipe).
func (f *FIFO[T]) Close() error {
	return f.CloseWithError(io.ErrClosedPipe)
}

// Err returns the error passed to CloseWithError, if any.
func (f *FIFO[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeErr
}

// Len reports the number of buffered elements.
func (f *FIFO[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int(f.tail - f.head)
}
