// Package pipe provides an in-memory duplex message channel.
package pipe

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("pipe closed")

type shared struct {
	done chan struct{}
	once sync.Once
}

func (s *shared) close() {
	s.once.Do(func() { close(s.done) })
}

// End is one side of a pipe.
type End struct {
	in     <-chan []byte
	out    chan<- []byte
	shared *shared
}

// New returns two connected ends. Messages written to one end are read from
// the other in order. Each direction buffers up to size messages.
func New(size int) (*End, *End) {
	ab := make(chan []byte, size)
	ba := make(chan []byte, size)
	s := &shared{done: make(chan struct{})}
	return &End{in: ba, out: ab, shared: s}, &End{in: ab, out: ba, shared: s}
}

func (e *End) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-e.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-e.in:
		return msg, nil
	case <-e.shared.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *End) WriteMessage(ctx context.Context, data []byte) error {
	select {
	case <-e.shared.done:
		return ErrClosed
	default:
	}
	msg := append([]byte(nil), data...)
	select {
	case e.out <- msg:
		return nil
	case <-e.shared.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes both ends.
func (e *End) Close() error {
	e.shared.close()
	return nil
}

// Done is closed when either end is closed.
func (e *End) Done() <-chan struct{} { return e.shared.done }
