// Package notify delivers offer messages to customers over WhatsApp (Evolution
// API) or email (SES).
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// ErrNoAddress is returned when the message lacks the address a channel needs.
var ErrNoAddress = errors.New("notify: recipient has no address for this channel")

// Message is one outbound notification.
type Message struct {
	Phone   string
	Email   string
	Name    string
	Subject string
	Text    string
}

// Notifier delivers a message on one channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Chain tries notifiers in order; the first success wins.
type Chain []Notifier

// Send returns nil on the first successful delivery, otherwise every error
// joined together.
func (c Chain) Send(ctx context.Context, msg Message) error {
	if len(c) == 0 {
		return fmt.Errorf("notify: no channels configured")
	}
	var errs []error
	for i, n := range c {
		err := n.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoAddress) {
			logger.Warn("channel failed, trying next", "channel", i, "error", err)
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
