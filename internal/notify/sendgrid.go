package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridSender - email через HTTP API SendGrid
type SendGridSender struct {
	apiKey   string
	host     string
	from     string
	fromName string
}

func NewSendGridSender(apiKey, from, fromName string) *SendGridSender {
	return &SendGridSender{apiKey: apiKey, host: sendGridHost, from: from, fromName: fromName}
}

func (s *SendGridSender) Channel() string {
	return "email"
}

func (s *SendGridSender) Send(ctx context.Context, target Target, content Content) (Result, error) {
	if target.Email == "" {
		return Result{}, ErrNoAddress
	}

	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.from),
		content.Title,
		mail.NewEmail(target.Name, target.Email),
		plainBody(content),
		htmlBody(content),
	)

	request := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return Result{}, fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	ref := ""
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		ref = ids[0]
	}
	return Result{MessageRef: ref}, nil
}
