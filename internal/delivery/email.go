package delivery

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/revenueangel/automation-engine/pkg/logging"
)

// SendGridConfig holds configuration for the email channel.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// EmailChannel delivers messages by email via SendGrid.
type EmailChannel struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewEmailChannel creates a SendGrid-backed channel, or nil when no API
// key is configured.
func NewEmailChannel(cfg SendGridConfig, logger *logging.Logger) *EmailChannel {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "RevenueAngel"
	}
	return &EmailChannel{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Deliver sends the message as a plain-text email. RecipientID is the
// destination address.
func (c *EmailChannel) Deliver(ctx context.Context, req Request) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("delivery: sendgrid client not configured")
	}
	if req.RecipientID == "" {
		return "", fmt.Errorf("delivery: recipient email is required")
	}

	subject := req.Subject
	if subject == "" {
		subject = "A message from " + c.fromName
	}

	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail("", req.RecipientID)

	body := req.Content
	if req.CTALabel != "" && req.CTAPath != "" {
		body += "\n\n" + req.CTALabel + ": " + req.CTAPath
	}
	message := mail.NewSingleEmail(from, subject, to, body, body)

	response, err := c.client.SendWithContext(ctx, message)
	if err != nil {
		c.logger.Error("sendgrid send failed", "error", err, "to", req.RecipientID)
		return "", fmt.Errorf("delivery: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		c.logger.Error("sendgrid returned error status", "status", response.StatusCode, "to", req.RecipientID)
		return "", fmt.Errorf("delivery: sendgrid returned status %d", response.StatusCode)
	}

	messageID := ""
	if ids, ok := response.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	c.logger.Info("email delivered", "to", req.RecipientID, "status", response.StatusCode)
	return messageID, nil
}
