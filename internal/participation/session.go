// Package participation drives one user through joining an event: name
// entry, PIX payment request, and confirmation once the payment settles.
//
// Every transition runs on a single loop goroutine. Public methods and the
// results of asynchronous work (gateway responses, pushed settlements,
// timers) are posted to that loop, so no two transitions ever interleave.
package participation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/susu3304/falta1/internal/channel"
	"github.com/susu3304/falta1/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrClosed            = errors.New("session closed")
	ErrSettlementTimeout = errors.New("payment was not confirmed in time")
)

// Gateway issues payment requests.
type Gateway interface {
	RequestPayment(ctx context.Context, eventID int64, displayName string) (model.PaymentRequest, error)
}

// Channel is the settlement push channel. A session holds at most one handle.
type Channel interface {
	Subscribe(ctx context.Context, txID, token string, deliver func(channel.Event)) (*channel.Handle, error)
	Close(h *channel.Handle) error
}

// Registry re-reads the authoritative participant list.
type Registry interface {
	Refresh(ctx context.Context, eventID int64) ([]model.Participant, error)
}

// StatusChecker answers a manual status check for a txid.
type StatusChecker interface {
	PaymentStatus(ctx context.Context, txID string) (model.PaymentStatus, error)
}

type Options struct {
	// SettlementTimeout bounds AwaitingSettlement. Zero disables it.
	SettlementTimeout time.Duration
	TimeoutPolicy     TimeoutPolicy
	// Status enables CheckStatus.
	Status StatusChecker
	// OnChange is called on the session loop after every change. It must
	// not call back into the session synchronously.
	OnChange func(Snapshot)
}

// Snapshot is a copy of the session state handed to observers.
type Snapshot struct {
	State        State
	DisplayName  string
	Request      *model.PaymentRequest
	Err          error
	Warning      string
	Participants []model.Participant
}

// paymentResult is the outcome of one gateway call.
type paymentResult struct {
	req model.PaymentRequest
	err error
}

type Session struct {
	eventID  int64
	gateway  Gateway
	channel  Channel
	registry Registry
	opts     Options

	ctx       context.Context
	stop      context.CancelFunc
	mb        *mailbox
	done      chan struct{}
	closeOnce sync.Once

	// final is the last snapshot, stored when the loop exits.
	finalMu sync.Mutex
	final   Snapshot

	// Owned by the loop goroutine.
	state        State
	name         string
	attempt      int
	request      *model.PaymentRequest
	handle       *channel.Handle
	abort        context.CancelFunc
	timer        *time.Timer
	err          error
	warning      string
	participants []model.Participant
}

// New starts a session in CollectingName for eventID.
func New(eventID int64, gateway Gateway, ch Channel, registry Registry, opts Options) *Session {
	ctx, stop := context.WithCancel(context.Background())
	s := &Session{
		eventID:  eventID,
		gateway:  gateway,
		channel:  ch,
		registry: registry,
		opts:     opts,
		ctx:      ctx,
		stop:     stop,
		mb:       newMailbox(),
		done:     make(chan struct{}),
		state:    CollectingName,
	}
	go s.loop()
	return s
}

// SubmitName validates name and asks the gateway for a new payment request.
// It is accepted in CollectingName and, to retry, in Failed.
func (s *Session) SubmitName(name string) error {
	return s.call(func() error { return s.submitName(name) })
}

// Back abandons the outstanding payment request and returns to name entry.
// The abandoned request is never resumed.
func (s *Session) Back() error {
	return s.call(s.back)
}

// Cancel abandons the attempt and ends the session.
func (s *Session) Cancel() error {
	return s.call(s.cancel)
}

// CheckStatus asks the authority whether the outstanding payment settled and
// applies a settlement exactly like a pushed one.
func (s *Session) CheckStatus(ctx context.Context) error {
	var txID string
	err := s.call(func() error {
		if s.state != AwaitingSettlement && s.state != ManualCheck {
			return s.invalid("check status")
		}
		if s.opts.Status == nil {
			return errors.New("no status checker configured")
		}
		txID = s.request.TxID
		return nil
	})
	if err != nil {
		return err
	}

	status, err := s.opts.Status.PaymentStatus(ctx, txID)
	if err != nil {
		return fmt.Errorf("failed to check payment status: %w", err)
	}
	return s.call(func() error {
		s.onSettlementPushed(model.StatusMessage{TxID: txID, Status: status})
		return nil
	})
}

// Snapshot returns the current session state. After Close it returns the
// state the session ended in.
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	if err := s.call(func() error { snap = s.snapshot(); return nil }); err != nil {
		<-s.done
		s.finalMu.Lock()
		defer s.finalMu.Unlock()
		return s.final
	}
	return snap
}

func (s *Session) State() State {
	return s.Snapshot().State
}

// Close cancels a non-terminal session, releases the channel and stops the
// loop. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.call(func() error {
			if !s.state.Terminal() {
				s.discardAttempt()
				s.setState(Cancelled)
			}
			return nil
		})
		s.stop()
		<-s.done
	})
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.finalMu.Lock()
			s.final = s.snapshot()
			s.finalMu.Unlock()
			s.discardAttempt()
			return
		case <-s.mb.signal:
			for _, f := range s.mb.drain() {
				f()
			}
		}
	}
}

func (s *Session) post(f func()) bool {
	if s.ctx.Err() != nil {
		return false
	}
	s.mb.push(f)
	return true
}

func (s *Session) call(fn func() error) error {
	res := make(chan error, 1)
	if !s.post(func() { res <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrClosed
		}
	}
}

func (s *Session) submitName(raw string) error {
	if s.state != CollectingName && s.state != Failed {
		return s.invalid("submit name")
	}
	name, err := model.NormalizeName(raw)
	if err != nil {
		return err
	}

	s.attempt++
	attempt := s.attempt
	s.name = name
	s.err = nil
	s.warning = ""
	s.request = nil

	ctx, cancel := context.WithCancel(s.ctx)
	s.abort = cancel
	s.setState(RequestingPayment)

	eventID := s.eventID
	go func() {
		req, err := s.gateway.RequestPayment(ctx, eventID, name)
		s.post(func() { s.onPaymentRequestReceived(attempt, paymentResult{req: req, err: err}) })
	}()
	return nil
}

func (s *Session) onPaymentRequestReceived(attempt int, res paymentResult) {
	if attempt != s.attempt || s.state != RequestingPayment {
		logger.Infof("session: discarding payment request result of abandoned attempt %d", attempt)
		return
	}
	s.abort()
	s.abort = nil

	if res.err == nil && res.req.TxID == "" {
		res.err = errors.New("gateway returned an empty txid")
	}
	if res.err != nil {
		logger.Warningf("session: payment request for event %d failed: %v", s.eventID, res.err)
		s.err = fmt.Errorf("%w: %v", model.ErrPaymentRequestFailed, res.err)
		s.setState(Failed)
		return
	}

	req := res.req
	s.request = &req
	h, err := s.channel.Subscribe(s.ctx, req.TxID, req.ChannelToken, func(ev channel.Event) {
		s.post(func() { s.onChannelEvent(attempt, ev) })
	})
	if err != nil {
		logger.Warningf("session: failed to subscribe to txid %s: %v", req.TxID, err)
		s.err = fmt.Errorf("%w: %v", model.ErrChannelUnavailable, err)
		s.setState(ManualCheck)
		s.armTimer(attempt)
		return
	}
	s.handle = h
	s.setState(AwaitingSettlement)
	s.armTimer(attempt)
}

func (s *Session) onChannelEvent(attempt int, ev channel.Event) {
	if ev.Err == nil {
		s.onSettlementPushed(ev.Message)
		return
	}
	if attempt != s.attempt || s.state != AwaitingSettlement {
		return
	}
	s.releaseChannel()
	s.err = ev.Err
	s.setState(ManualCheck)
}

func (s *Session) onSettlementPushed(msg model.StatusMessage) {
	if s.state != AwaitingSettlement && s.state != ManualCheck {
		logger.Infof("session: %v: txid %s (%s) in state %s", model.ErrStaleMessage, msg.TxID, msg.Status, s.state)
		return
	}
	if s.request == nil || msg.TxID != s.request.TxID {
		logger.Infof("session: %v: txid %s does not match the outstanding request", model.ErrStaleMessage, msg.TxID)
		return
	}
	if !msg.IsSettled() {
		return
	}

	s.releaseChannel()
	s.stopTimer()
	s.err = nil
	s.warning = ""
	s.setState(Settled)

	eventID := s.eventID
	go func() {
		ps, err := s.registry.Refresh(s.ctx, eventID)
		s.post(func() { s.onRefreshed(ps, err) })
	}()
}

func (s *Session) onRefreshed(ps []model.Participant, err error) {
	if err != nil {
		logger.Warningf("session: failed to refresh participants of event %d: %v", s.eventID, err)
		s.warning = "participant list could not be refreshed"
		s.notify()
		return
	}
	s.participants = ps
	s.notify()
}

func (s *Session) onTimeout(attempt int) {
	if attempt != s.attempt || (s.state != AwaitingSettlement && s.state != ManualCheck) {
		return
	}
	switch s.opts.TimeoutPolicy {
	case TimeoutExpire:
		s.releaseChannel()
		s.timer = nil
		s.err = ErrSettlementTimeout
		s.setState(TimedOut)
	default:
		s.warning = fmt.Sprintf("payment not confirmed after %s, check the payment status manually", s.opts.SettlementTimeout)
		s.notify()
	}
}

func (s *Session) back() error {
	switch s.state {
	case RequestingPayment, AwaitingSettlement, ManualCheck, Failed:
	default:
		return s.invalid("go back")
	}
	s.discardAttempt()
	s.err = nil
	s.warning = ""
	s.setState(CollectingName)
	return nil
}

func (s *Session) cancel() error {
	if s.state == Cancelled {
		return nil
	}
	if s.state.Terminal() {
		return s.invalid("cancel")
	}
	s.discardAttempt()
	s.setState(Cancelled)
	return nil
}

// discardAttempt releases everything the current attempt holds. Results that
// arrive later for it are ignored because the attempt counter moves on.
func (s *Session) discardAttempt() {
	if s.abort != nil {
		s.abort()
		s.abort = nil
	}
	s.releaseChannel()
	s.stopTimer()
	s.request = nil
	s.attempt++
}

func (s *Session) releaseChannel() {
	if s.handle == nil {
		return
	}
	if err := s.channel.Close(s.handle); err != nil {
		logger.Warningf("session: failed to close subscription for txid %s: %v", s.handle.TxID, err)
	}
	s.handle = nil
}

func (s *Session) armTimer(attempt int) {
	s.stopTimer()
	if s.opts.SettlementTimeout <= 0 {
		return
	}
	s.timer = time.AfterFunc(s.opts.SettlementTimeout, func() {
		s.post(func() { s.onTimeout(attempt) })
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) setState(st State) {
	if st != s.state {
		logger.Infof("session: event %d: %s -> %s", s.eventID, s.state, st)
	}
	s.state = st
	s.notify()
}

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.snapshot())
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:       s.state,
		DisplayName: s.name,
		Err:         s.err,
		Warning:     s.warning,
	}
	if s.request != nil {
		req := *s.request
		snap.Request = &req
	}
	if s.participants != nil {
		snap.Participants = append([]model.Participant(nil), s.participants...)
	}
	return snap
}

func (s *Session) invalid(action string) error {
	return fmt.Errorf("%w: cannot %s in state %s", ErrInvalidTransition, action, s.state)
}
