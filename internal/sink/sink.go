// Package sink implements the downstream event sink the connection runtime
// forwards decoded Fluent frames to. It fans the events from every
// connection's goroutine into a single buffered worker, which is what
// gives the runtime genuine backpressure: once the buffer is full, a Block
// policy sink makes SendEvent block (and so slows the offending
// connection's reads), while a Drop policy sink sheds load instead.
package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/fluentgate/internal/event"
)

// Policy selects the sink's behavior when its buffer is full.
type Policy int

const (
	// PolicyBlock makes SendEvent block until buffer space frees up or the
	// sink's context is cancelled. This is the default: it applies
	// backpressure upstream rather than buffer unboundedly.
	PolicyBlock Policy = iota
	// PolicyDrop makes SendEvent return immediately, invoking OnDrop and
	// discarding the event, when the buffer is full.
	PolicyDrop
)

// ErrClosed is returned by SendEvent once the sink has been closed.
var ErrClosed = errors.New("sink: closed")

// ErrOverflow is returned by SendEvent under PolicyDrop when the buffer is full.
var ErrOverflow = errors.New("sink: overflow")

// Hooks are optional callbacks invoked around delivery.
type Hooks struct {
	OnError func(error) // invoked when deliver returns an error
	OnAfter func()       // invoked after every successful delivery
	OnDrop  func()       // invoked when PolicyDrop discards an event
}

// Sink fans events from many connection goroutines into one delivery
// worker. Safe for concurrent use by multiple connections.
type Sink struct {
	ch      chan event.Event
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	deliver func(event.Event) error
	policy  Policy
	hooks   Hooks
	closed  atomic.Bool
}

// New starts a Sink with the given buffer size, delivering events to
// deliver from a single background goroutine.
func New(parent context.Context, buf int, deliver func(event.Event) error, policy Policy, hooks Hooks) *Sink {
	ctx, cancel := context.WithCancel(parent)
	s := &Sink{
		ch:      make(chan event.Event, buf),
		ctx:     ctx,
		cancel:  cancel,
		deliver: deliver,
		policy:  policy,
		hooks:   hooks,
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Sink) loop() {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.ch:
			if err := s.deliver(e); err != nil {
				if s.hooks.OnError != nil {
					s.hooks.OnError(err)
				}
				continue
			}
			if s.hooks.OnAfter != nil {
				s.hooks.OnAfter()
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// SendEvent delivers e according to the sink's policy. Under PolicyBlock it
// blocks until the buffer has room or the sink is cancelled/closed; under
// PolicyDrop it returns ErrOverflow immediately instead of blocking. The
// channel send itself is what serializes producers against Close, so no
// lock is held across it: s.ch is never closed (only ctx is cancelled),
// and a racing Close unblocks any in-flight send via the ctx.Done() case
// below instead of a send-on-closed-channel panic.
func (s *Sink) SendEvent(e event.Event) error {
	if s.closed.Load() {
		return ErrClosed
	}

	switch s.policy {
	case PolicyDrop:
		select {
		case s.ch <- e:
			return nil
		default:
			if s.hooks.OnDrop != nil {
				s.hooks.OnDrop()
			}
			return ErrOverflow
		}
	default: // PolicyBlock
		select {
		case s.ch <- e:
			return nil
		case <-s.ctx.Done():
			return ErrClosed
		}
	}
}

// Close stops the delivery worker. Idempotent.
func (s *Sink) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.wg.Wait()
}
