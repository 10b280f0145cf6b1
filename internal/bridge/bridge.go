// Package bridge owns the single live connection to the remote messaging
// service. One worker goroutine holds the session and runs both the
// inbound event loop and every submitted operation, strictly serialized;
// the service forbids concurrent use of one authenticated session.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/remote"
)

var (
	// ErrNotConnected is returned by Submit when no live session exists.
	ErrNotConnected = errors.New("bridge: not connected")

	// ErrTimeout is returned when a submitted operation's caller exceeded
	// its wait. The operation itself keeps running on the worker; only
	// the caller's wait is abandoned.
	ErrTimeout = errors.New("bridge: operation timed out")
)

// State is the bridge's connectivity tri-state.
type State string

const (
	StateStopped    State = "stopped"
	StateConnecting State = "connecting"
	StateReady      State = "ready"
)

// Op is a unit of work executed on the worker goroutine with exclusive
// access to the session.
type Op func(ctx context.Context, s remote.Session) (any, error)

type opResult struct {
	val any
	err error
}

type workItem struct {
	op     Op
	result chan opResult // buffered; worker never blocks on delivery
}

const stopJoinWait = 5 * time.Second

// Bridge manages the session lifecycle and serializes all access to it.
type Bridge struct {
	dialer  remote.Dialer
	log     *logging.Logger
	handler func(domain.MessageEvent)

	mu      sync.Mutex
	state   State
	running bool
	ready   chan struct{} // closed when the session is live; re-armed per start
	work    chan workItem
	stop    chan struct{}
	done    chan struct{} // closed when the worker goroutine exits
}

// New creates a bridge around the given dialer. Start must be called
// before any Submit.
func New(dialer remote.Dialer, log *logging.Logger) *Bridge {
	return &Bridge{
		dialer: dialer,
		log:    log.Sub("bridge"),
		state:  StateStopped,
	}
}

// OnMessage registers the single inbound event handler. It is invoked
// synchronously on the worker goroutine, one event at a time, in delivery
// order. Must be set before Start.
func (b *Bridge) OnMessage(handler func(domain.MessageEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Status returns the current connectivity state.
func (b *Bridge) Status() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Start spawns the worker goroutine that dials the session and runs the
// event/submit loop. Idempotent: a second start while one is alive is a
// no-op. Interactive authorization blocks the startup path inside Dial,
// never already-submitted work.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.log.Debug().Msg("start requested but bridge already running")
		return
	}
	b.running = true
	b.state = StateConnecting
	b.ready = make(chan struct{})
	b.work = make(chan workItem)
	b.stop = make(chan struct{})
	b.done = make(chan struct{})

	go b.run(ctx, b.ready, b.work, b.stop, b.done)
}

// WaitReady blocks until the session is live or the timeout elapses.
func (b *Bridge) WaitReady(timeout time.Duration) bool {
	b.mu.Lock()
	ready := b.ready
	running := b.running
	b.mu.Unlock()
	if !running {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return true
	case <-timer.C:
		return false
	}
}

// Submit marshals op onto the worker goroutine and waits for its result
// up to the given timeout. Safe for concurrent use. Fails fast with
// ErrNotConnected when no live session exists; returns ErrTimeout when
// the wait ceiling is exceeded (the operation is not interrupted).
func (b *Bridge) Submit(ctx context.Context, op Op, timeout time.Duration) (any, error) {
	b.mu.Lock()
	if b.state != StateReady {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	work := b.work
	done := b.done
	b.mu.Unlock()

	item := workItem{op: op, result: make(chan opResult, 1)}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case work <- item:
	case <-done:
		return nil, ErrNotConnected
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-item.result:
		return res.val, res.err
	case <-done:
		return nil, ErrNotConnected
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop requests a graceful disconnect and joins the worker with a bounded
// wait. Safe to call from any goroutine; a no-op when not running.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	stop := b.stop
	done := b.done
	b.mu.Unlock()

	select {
	case stop <- struct{}{}:
	case <-done:
		return
	case <-time.After(stopJoinWait):
		b.log.Warn().Msg("worker did not accept stop request in time")
		return
	}

	select {
	case <-done:
	case <-time.After(stopJoinWait):
		b.log.Warn().Msg("worker did not exit in time")
	}
}

// run is the worker goroutine: it owns the session handle exclusively
// for its entire lifetime.
func (b *Bridge) run(ctx context.Context, ready chan struct{}, work chan workItem, stop, done chan struct{}) {
	defer func() {
		b.mu.Lock()
		b.running = false
		b.state = StateStopped
		b.mu.Unlock()
		close(done)
	}()

	sess, err := b.dialer.Dial(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to establish session")
		return
	}

	b.mu.Lock()
	b.state = StateReady
	handler := b.handler
	b.mu.Unlock()
	close(ready)
	b.log.Info().Msg("session ready, listening for events")

	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				b.log.Warn().Msg("event stream closed, session gone")
				sess.Close(context.Background())
				return
			}
			if handler != nil {
				handler(ev)
			}
		case item := <-work:
			val, err := item.op(ctx, sess)
			item.result <- opResult{val: val, err: err}
		case <-stop:
			b.log.Info().Msg("stop requested, disconnecting")
			sess.Close(ctx)
			return
		case <-sess.Done():
			b.log.Warn().Msg("session disconnected")
			sess.Close(context.Background())
			return
		case <-ctx.Done():
			sess.Close(context.Background())
			return
		}
	}
}
