package notify

import (
	"net/smtp"
	"sync"

	"github.com/jordan-wright/email"
)

// MailTransporter abstracts the outgoing mail hop so tests can capture
// messages instead of speaking SMTP.
type MailTransporter interface {
	Send(e *email.Email) error
}

// SMTPTransport sends via a real SMTP relay.
type SMTPTransport struct {
	addr string
	auth smtp.Auth
}

func NewSMTPTransport(addr, username, password, host string) *SMTPTransport {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPTransport{addr: addr, auth: auth}
}

func (t *SMTPTransport) Send(e *email.Email) error {
	return e.Send(t.addr, t.auth)
}

// MockMailTransport captures sent mail for assertions.
type MockMailTransport struct {
	mu   sync.Mutex
	sent []*email.Email
	err  error
}

func NewMockMailTransport() *MockMailTransport {
	return &MockMailTransport{}
}

// FailWith makes every subsequent Send return err.
func (t *MockMailTransport) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

func (t *MockMailTransport) Send(e *email.Email) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, e)
	return nil
}

func (t *MockMailTransport) GetLastSentMail() *email.Email {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sent) == 0 {
		return nil
	}
	return t.sent[len(t.sent)-1]
}

func (t *MockMailTransport) SentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}
