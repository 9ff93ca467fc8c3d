// Package notify fans operator messages out to chat webhooks. Notify drops
// events outside the configured allow list.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *zap.Logger
}

// NewNotifier delivers to senders. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *zap.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(zap.String("component", "notifier")),
	}
}

func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.Debug("Event filtered out", zap.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll bypasses the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// Senders reports how many channels are configured.
func (n *Notifier) Senders() int {
	return len(n.senders)
}

// dispatch keeps going after a sender fails and returns the combined error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("Sender failed", zap.String("sender", s.Name()), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.Debug("Notification sent", zap.String("sender", s.Name()), zap.String("title", title))
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

var _ domain.Notifier = (*Notifier)(nil)
