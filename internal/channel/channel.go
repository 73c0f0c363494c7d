// Package channel implements the client side of the settlement push channel.
//
// A Channel owns at most one subscription at a time. A subscription is scoped
// to a single txid, survives transport drops by reconnecting with bounded
// exponential backoff and delivers at most one terminal settlement to its
// owner. On every (re)connect the current status is requested first, so a
// settlement that happened while no socket was open is not lost.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/logger"
	"github.com/susu3304/falta1/internal/model"
)

var ErrAlreadySubscribed = errors.New("channel: a subscription is already open")

// Event is what a subscription hands to its owner: either a settlement
// message or a terminal error wrapping model.ErrChannelUnavailable.
type Event struct {
	Message model.StatusMessage
	Err     error
}

// Conn is one established transport connection scoped to a txid.
type Conn interface {
	RequestStatus(txID string) error
	Read() (model.StatusMessage, error)
	Close() error
}

// Transport opens connections to the push endpoint.
type Transport interface {
	Dial(ctx context.Context, txID, token string) (Conn, error)
}

type Options struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts is the number of consecutive failed connection attempts
	// after which the subscription gives up with ErrChannelUnavailable.
	MaxAttempts int
}

func DefaultOptions() Options {
	return Options{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 8,
	}
}

type Channel struct {
	transport Transport
	opts      Options

	mu     sync.Mutex
	active *Handle
}

func New(transport Transport, opts Options) *Channel {
	def := DefaultOptions()
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = def.MaxDelay
		if opts.MaxDelay < opts.BaseDelay {
			opts.MaxDelay = opts.BaseDelay
		}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	return &Channel{transport: transport, opts: opts}
}

// Handle is an open subscription. The zero value is not usable.
type Handle struct {
	TxID string

	token     string
	deliver   func(Event)
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
	delivered atomic.Bool

	mu   sync.Mutex
	conn Conn
}

// Subscribe opens a subscription for txID. deliver is called from the
// subscription goroutine and must not block; it is never called after Close
// has returned. Subscribing while another handle is open fails fast.
func (c *Channel) Subscribe(ctx context.Context, txID, token string, deliver func(Event)) (*Handle, error) {
	if txID == "" {
		return nil, fmt.Errorf("channel: empty txid")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && !c.active.closed.Load() {
		return nil, ErrAlreadySubscribed
	}

	subCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		TxID:    txID,
		token:   token,
		deliver: deliver,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.active = h
	go c.run(subCtx, h)
	return h, nil
}

// Close releases the subscription and waits for its goroutine to exit. It is
// safe to call more than once, with a nil handle, and after a terminal event.
func (c *Channel) Close(h *Handle) error {
	if h == nil {
		return nil
	}
	if h.closed.CompareAndSwap(false, true) {
		h.cancel()
		h.closeConn()
	}
	<-h.done

	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()
	return nil
}

// Active reports whether the channel currently holds an open subscription.
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && !c.active.closed.Load()
}

func (c *Channel) run(ctx context.Context, h *Handle) {
	defer close(h.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BaseDelay
	b.MaxInterval = c.opts.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.transport.Dial(ctx, h.TxID, h.token)
		if err == nil {
			if !h.setConn(conn) {
				_ = conn.Close()
				return
			}
			var progressed, terminal bool
			progressed, terminal, err = c.pump(h, conn)
			h.clearConn()
			_ = conn.Close()
			if terminal || ctx.Err() != nil {
				return
			}
			if progressed {
				failures = 0
				b.Reset()
			}
		}

		failures++
		if failures >= c.opts.MaxAttempts {
			logger.Warningf("channel: giving up on txid %s after %d attempts: %v", h.TxID, failures, err)
			h.emit(Event{Err: fmt.Errorf("%w: %v", model.ErrChannelUnavailable, err)})
			return
		}

		wait := b.NextBackOff()
		if wait > c.opts.MaxDelay {
			wait = c.opts.MaxDelay
		}
		logger.Infof("channel: txid %s disconnected (%v), retry %d in %s", h.TxID, err, failures, wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// pump drives one connection until it drops or a settlement for the
// subscribed txid arrives.
func (c *Channel) pump(h *Handle, conn Conn) (progressed, terminal bool, err error) {
	if err := conn.RequestStatus(h.TxID); err != nil {
		return false, false, fmt.Errorf("request status: %w", err)
	}
	for {
		msg, err := conn.Read()
		if err != nil {
			return progressed, false, err
		}
		progressed = true
		if msg.TxID != h.TxID {
			logger.Infof("channel: ignoring message for foreign txid %q", msg.TxID)
			continue
		}
		if !msg.IsSettled() {
			continue
		}
		h.emit(Event{Message: msg})
		return true, true, nil
	}
}

// emit delivers at most one terminal event per handle.
func (h *Handle) emit(ev Event) {
	if h.closed.Load() {
		return
	}
	if !h.delivered.CompareAndSwap(false, true) {
		return
	}
	if h.deliver != nil {
		h.deliver(ev)
	}
}

func (h *Handle) setConn(conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return false
	}
	h.conn = conn
	return true
}

func (h *Handle) clearConn() {
	h.mu.Lock()
	h.conn = nil
	h.mu.Unlock()
}

func (h *Handle) closeConn() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		_ = h.conn.Close()
	}
}
