package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"go.uber.org/zap"
)

const notifyTimeout = 15 * time.Second

// asyncNotifier hands messages to a domain.Notifier on their own goroutine so
// callers holding the state lock never wait on a webhook.
type asyncNotifier struct {
	target domain.Notifier
	logger *zap.Logger
	wg     sync.WaitGroup
}

func newAsyncNotifier(target domain.Notifier, logger *zap.Logger) *asyncNotifier {
	return &asyncNotifier{target: target, logger: logger}
}

func (a *asyncNotifier) send(event, title, message string) {
	if a == nil || a.target == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := a.target.Notify(ctx, event, title, message); err != nil {
			a.logger.Warn("Notification failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

func (a *asyncNotifier) wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}
