package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"MailRamp/internal/models"
)

// Credentials are the SMTP settings of one mailbox.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	SSL      bool
}

func CredentialsOf(mb models.Mailbox) Credentials {
	return Credentials{
		Host:     mb.SMTPHost,
		Port:     mb.SMTPPort,
		User:     mb.SMTPUser,
		Password: mb.SMTPPass,
		SSL:      mb.SMTPSecure,
	}
}

type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	Body     string
	Headers  map[string]string
}

// Transport delivers one message and returns its Message-ID.
type Transport interface {
	Send(ctx context.Context, creds Credentials, msg Message) (string, error)
}

// MailboxFault wraps a failure caused by the sending mailbox itself
// (rejected credentials, unreachable server) rather than by the recipient.
type MailboxFault struct {
	Err error
}

func (e *MailboxFault) Error() string { return "mailbox fault: " + e.Err.Error() }
func (e *MailboxFault) Unwrap() error { return e.Err }

func IsMailboxFault(err error) bool {
	var f *MailboxFault
	return errors.As(err, &f)
}

// classify marks connection and authentication errors as mailbox faults.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var tp *textproto.Error
	if errors.As(err, &tp) {
		switch tp.Code {
		case 421, 454, 530, 534, 535:
			return &MailboxFault{Err: err}
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
		return &MailboxFault{Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"auth", "dial", "connection refused", "tls", "certificate"} {
		if strings.Contains(msg, marker) {
			return &MailboxFault{Err: err}
		}
	}
	return err
}

type SMTPTransport struct {
	Timeout time.Duration

	// dial sends through a dialer; replaced in tests.
	dial func(d *gomail.Dialer, m *gomail.Message) error
}

func NewSMTPTransport(timeout time.Duration) *SMTPTransport {
	return &SMTPTransport{
		Timeout: timeout,
		dial: func(d *gomail.Dialer, m *gomail.Message) error {
			return d.DialAndSend(m)
		},
	}
}

// Send dials the mailbox's server and delivers msg. The call gives up after
// Timeout or when ctx ends; the dial goroutine is left to finish on its own.
func (t *SMTPTransport) Send(ctx context.Context, creds Credentials, msg Message) (string, error) {
	id := newMessageID(msg.From)

	m := gomail.NewMessage()
	if msg.FromName != "" {
		m.SetAddressHeader("From", msg.From, msg.FromName)
	} else {
		m.SetHeader("From", msg.From)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}
	m.SetBody("text/html", msg.Body)

	d := gomail.NewDialer(creds.Host, creds.Port, creds.User, creds.Password)
	d.SSL = creds.SSL

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- t.dial(d, m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("smtp send error: %w", classify(err))
		}
		return id, nil
	case <-ctx.Done():
		return "", fmt.Errorf("smtp send error: %w", classify(ctx.Err()))
	}
}

func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// LogTransport accepts every message and only logs it.
type LogTransport struct {
	Log *zap.Logger
}

func (t *LogTransport) Send(ctx context.Context, creds Credentials, msg Message) (string, error) {
	id := newMessageID(msg.From)
	t.Log.Info("dry run send",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("message_id", id),
	)
	return id, nil
}
