// Package email provides the email client for sending transactional emails.
package email

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/email/templates"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendLaunchRecap(ctx context.Context, toEmail string, recap templates.LaunchRecapProps) error
}

// Message is a fully rendered outbound email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
	logger    *logging.ChanneledLogger
}

// LogService renders messages and writes them to the log instead of sending them.
type LogService struct {
	logger *logging.ChanneledLogger
	sent   []Message
}

// NewService returns a Resend-backed service when RESEND_API_KEY is set, otherwise a LogService.
func NewService(logger *logging.ChanneledLogger) Service {
	if config.ResendAPIKey == "" {
		logger.Startup().Warn("RESEND_API_KEY not set, recap emails will only be logged")
		return NewLogService(logger)
	}
	return &ResendClient{
		client:    resend.NewClient(config.ResendAPIKey),
		fromEmail: config.EmailFrom,
		fromName:  config.EmailFromName,
		logger:    logger,
	}
}

// NewLogService creates a log-only email service
func NewLogService(logger *logging.ChanneledLogger) *LogService {
	return &LogService{logger: logger}
}

// SendLaunchRecap composes and sends the launch recap email.
func (c *ResendClient) SendLaunchRecap(ctx context.Context, toEmail string, recap templates.LaunchRecapProps) error {
	msg := RenderLaunchRecap(toEmail, recap)
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	sent, err := c.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send recap email via Resend: %w", err)
	}
	c.logger.Launch().Info("Recap email sent", "to", logging.MaskEmail(toEmail), "messageId", sent.Id)
	return nil
}

// SendLaunchRecap renders the recap and logs it.
func (s *LogService) SendLaunchRecap(ctx context.Context, toEmail string, recap templates.LaunchRecapProps) error {
	msg := RenderLaunchRecap(toEmail, recap)
	s.sent = append(s.sent, msg)
	s.logger.Launch().Info("Recap email not sent (no provider configured)",
		"to", logging.MaskEmail(toEmail), "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}

// Sent returns messages handled so far
func (s *LogService) Sent() []Message {
	return s.sent
}

// RenderLaunchRecap builds the subject and HTML body for a recap email
func RenderLaunchRecap(toEmail string, recap templates.LaunchRecapProps) Message {
	content := templates.GetLaunchRecapContent(recap)
	return Message{
		To:      toEmail,
		Subject: fmt.Sprintf("Launch recap: %s", recap.LaunchTitle),
		HTML: templates.GetEmailLayout(templates.EmailLayoutProps{
			Preheader: fmt.Sprintf("%s revenue for %s", recap.Revenue, recap.LaunchTitle),
			Title:     "Launch recap",
			Content:   content,
		}),
	}
}
