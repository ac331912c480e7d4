package delivery

import (
	"context"

	"github.com/revenueangel/automation-engine/pkg/logging"
)

// Request is one outbound message delivery.
type Request struct {
	RecipientID string // platform user id, or email address for the email channel
	Subject     string
	Content     string
	CTALabel    string
	CTAPath     string
}

// Channel delivers a rendered message over one transport. Implementations
// return the provider's message id on success.
type Channel interface {
	Deliver(ctx context.Context, req Request) (string, error)
}

// StubChannel logs deliveries without sending. Used when a channel's
// credentials are not configured.
type StubChannel struct {
	name   string
	logger *logging.Logger
}

// NewStubChannel creates a no-op channel labeled with the disabled
// channel's name.
func NewStubChannel(name string, logger *logging.Logger) *StubChannel {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubChannel{name: name, logger: logger}
}

// Deliver logs the message but does not send it.
func (c *StubChannel) Deliver(_ context.Context, req Request) (string, error) {
	c.logger.Info("stub channel: would deliver message",
		"channel", c.name,
		"recipient", req.RecipientID,
	)
	return "stub-" + c.name, nil
}
