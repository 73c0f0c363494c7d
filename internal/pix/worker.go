package pix

import (
	"context"
	"time"

	"github.com/google/logger"
	"github.com/susu3304/falta1/internal/model"
)

type ExpiryStore interface {
	ExpireStalePayments(ctx context.Context, now time.Time) ([]string, error)
}

type StatusPublisher interface {
	Publish(ctx context.Context, msg model.StatusMessage) error
}

// ExpiryWorker periodically expires pending charges past their deadline
// and publishes the new status.
type ExpiryWorker struct {
	store    ExpiryStore
	pub      StatusPublisher
	stopChan chan struct{}
	ticker   *time.Ticker
	interval time.Duration
	now      func() time.Time
}

func NewExpiryWorker(store ExpiryStore, pub StatusPublisher) *ExpiryWorker {
	return &ExpiryWorker{
		store:    store,
		pub:      pub,
		stopChan: make(chan struct{}),
		interval: time.Minute,
		now:      time.Now,
	}
}

// Run ticks until ctx is done or Stop is called.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.ticker = time.NewTicker(w.interval)
	defer w.ticker.Stop()
	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *ExpiryWorker) Stop() {
	close(w.stopChan)
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	txIDs, err := w.store.ExpireStalePayments(ctx, w.now())
	if err != nil {
		logger.Errorf("expiry: failed to expire stale payments: %v", err)
		return
	}
	for _, txID := range txIDs {
		msg := model.StatusMessage{TxID: txID, Status: model.StatusExpired}
		if err := w.pub.Publish(ctx, msg); err != nil {
			logger.Warningf("expiry: failed to publish expiry of %s: %v", txID, err)
		}
	}
	if len(txIDs) > 0 {
		logger.Infof("expiry: expired %d pending charges", len(txIDs))
	}
}
