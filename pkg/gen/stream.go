package gen

import (
	"errors"
	"fmt"

	"github.com/xdh1129/medassist/pkg/buffer"
)

// ErrDone is the sentinel wrapped by the terminal state of a stream
// that finished normally.
var ErrDone = errors.New("gen: done")

type Status int

const (
	StatusOK Status = iota
	StatusDone
	StatusTruncated
	StatusBlocked
	StatusError
)

// State is the terminal error of a stream. It reports how generation
// ended and the usage accounted by the endpoint.
type State struct {
	usage  Usage
	status Status
	err    error
}

func (s *State) Usage() Usage   { return s.usage }
func (s *State) Status() Status { return s.status }
func (s *State) Unwrap() error  { return s.err }

func (s *State) Error() string {
	if s.status == StatusDone {
		return "gen: generate done"
	}
	return s.err.Error()
}

func Done(usage Usage) *State {
	return &State{usage: usage, status: StatusDone, err: ErrDone}
}

func Truncated(usage Usage) *State {
	return &State{usage: usage, status: StatusTruncated, err: errors.New("gen: generate truncated")}
}

func Blocked(usage Usage, refusal string) *State {
	return &State{usage: usage, status: StatusBlocked, err: fmt.Errorf("gen: generate blocked: %s", refusal)}
}

func Failed(usage Usage, err error) *State {
	return &State{usage: usage, status: StatusError, err: fmt.Errorf("gen: generate error: %w", err)}
}

// IsDone reports whether err is the normal end of a stream.
func IsDone(err error) bool {
	return errors.Is(err, ErrDone)
}

type streamEvent struct {
	chunk   *MessageChunk
	status  Status
	usage   Usage
	refusal string
	err     error
}

// StreamBuilder is the producer side of a Stream. A provider puller
// goroutine Adds chunks and finishes with exactly one of Done,
// Truncated, Blocked, or Abort.
type StreamBuilder struct {
	fifo *buffer.FIFO[*streamEvent]
}

func NewStreamBuilder(size int) *StreamBuilder {
	return &StreamBuilder{fifo: buffer.New[*streamEvent](size)}
}

func (sb *StreamBuilder) Add(chunks ...*MessageChunk) error {
	for _, c := range chunks {
		if err := sb.fifo.Add(&streamEvent{chunk: c}); err != nil {
			return err
		}
	}
	return nil
}

func (sb *StreamBuilder) Done(usage Usage) error {
	return sb.finish(&streamEvent{status: StatusDone, usage: usage})
}

func (sb *StreamBuilder) Truncated(usage Usage) error {
	return sb.finish(&streamEvent{status: StatusTruncated, usage: usage})
}

func (sb *StreamBuilder) Blocked(usage Usage, refusal string) error {
	return sb.finish(&streamEvent{status: StatusBlocked, usage: usage, refusal: refusal})
}

// Abort closes the stream with a transport-level error. The consumer
// observes it on its next Next call.
func (sb *StreamBuilder) Abort(err error) error {
	return sb.fifo.CloseWithError(err)
}

func (sb *StreamBuilder) finish(evt *streamEvent) error {
	if err := sb.fifo.Add(evt); err != nil {
		return err
	}
	return sb.fifo.CloseWrite()
}

// Stream returns the consumer side.
func (sb *StreamBuilder) Stream() Stream {
	return (*builtStream)(sb)
}

type builtStream StreamBuilder

func (s *builtStream) Next() (*MessageChunk, error) {
	evt, err := s.fifo.Next()
	if err != nil {
		if errors.Is(err, buffer.ErrDone) {
			return nil, Done(Usage{})
		}
		return nil, err
	}
	switch evt.status {
	case StatusOK:
		return evt.chunk, nil
	case StatusDone:
		err = Done(evt.usage)
	case StatusTruncated:
		err = Truncated(evt.usage)
	case StatusBlocked:
		err = Blocked(evt.usage, evt.refusal)
	case StatusError:
		err = Failed(evt.usage, evt.err)
	default:
		err = fmt.Errorf("gen: unexpected stream status: %v", evt.status)
	}
	s.fifo.CloseWithError(err)
	return nil, err
}

func (s *builtStream) Close() error {
	return s.fifo.Close()
}

func (s *builtStream) CloseWithError(err error) error {
	return s.fifo.CloseWithError(err)
}
