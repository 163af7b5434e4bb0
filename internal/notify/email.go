package notify

import (
	"context"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

// EmailSender отправляет письма через SMTP
type EmailSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string

	// dialAndSend подменяется в тестах
	dialAndSend func(m ...*gomail.Message) error
}

func NewEmailSender(host string, port int, username, password, from, fromName string) *EmailSender {
	d := gomail.NewDialer(host, port, username, password)
	return &EmailSender{
		dialer:      d,
		from:        from,
		fromName:    fromName,
		dialAndSend: d.DialAndSend,
	}
}

func (s *EmailSender) Channel() string {
	return "email"
}

// Send не блокирует дольше дедлайна ctx: gomail не принимает контекст,
// поэтому отправка идет в отдельной горутине.
func (s *EmailSender) Send(ctx context.Context, target Target, content Content) (Result, error) {
	if target.Email == "" {
		return Result{}, ErrNoAddress
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetAddressHeader("To", target.Email, target.Name)
	m.SetHeader("Subject", content.Title)
	m.SetBody("text/plain", plainBody(content))
	m.AddAlternative("text/html", htmlBody(content))

	done := make(chan error, 1)
	go func() {
		done <- s.dialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return Result{}, fmt.Errorf("smtp send: %w", err)
		}
		return Result{}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func plainBody(c Content) string {
	if c.Link == "" {
		return c.Body
	}
	return c.Body + "\n\n" + c.Link
}

func htmlBody(c Content) string {
	out := "<p>" + html.EscapeString(c.Body) + "</p>"
	if c.Link != "" {
		out += `<p><a href="` + html.EscapeString(c.Link) + `">Open chat</a></p>`
	}
	return out
}
