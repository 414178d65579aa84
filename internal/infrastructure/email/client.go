// Package email provides the email client for sending transactional emails.
package email

import (
	"fmt"
	"os"

	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendSessionAlert(toEmail, ownerID, sessionID, url string) error
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
}

// NewService creates a new email service client, returning the Service interface.
func NewService() (Service, error) {
	apiKey := os.Getenv("RESEND_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY environment variable is required")
	}

	fromEmail := os.Getenv("ALERT_EMAIL_FROM")
	if fromEmail == "" {
		fromEmail = "alerts@sessionstory.co"
	}

	fromName := os.Getenv("ALERT_EMAIL_FROM_NAME")
	if fromName == "" {
		fromName = "SessionStory"
	}

	return &ResendClient{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}, nil
}

// SendSessionAlert notifies an owner that a new session started recording
// on one of their pages.
func (c *ResendClient) SendSessionAlert(toEmail, ownerID, sessionID, url string) error {
	subject := "A new session was recorded"

	htmlContent := fmt.Sprintf(
		`<p>A new visitor session just started recording.</p>
<p><strong>Session:</strong> %s<br/>
<strong>Page:</strong> %s</p>
<p>Open your dashboard to watch the replay once the visitor leaves.</p>`,
		sessionID, url,
	)

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{toEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	_, err := c.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send session alert via Resend: %w", err)
	}

	return nil
}
