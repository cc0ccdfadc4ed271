// Package mail delivers transactional email through a pluggable Sender.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrDeliveryFailed wraps every delivery failure reported by a Sender.
var ErrDeliveryFailed = errors.New("mail: delivery failed")

// Message is a plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers messages. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f(ctx, msg).
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Driver names accepted by Config.Driver.
const (
	DriverSMTP     = "smtp"
	DriverPostmark = "postmark"
	DriverLog      = "log"
)

// Config selects and configures a Sender.
type Config struct {
	Driver string
	From   string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTimeout  time.Duration

	PostmarkServerToken  string
	PostmarkAccountToken string
}

// NewSender builds the Sender named by cfg.Driver.
func NewSender(cfg Config, logger *slog.Logger) (Sender, error) {
	switch cfg.Driver {
	case DriverSMTP, "":
		return NewSMTPSender(cfg)
	case DriverPostmark:
		return NewPostmarkSender(cfg)
	case DriverLog:
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("mail: unknown driver %q", cfg.Driver)
	}
}

func validate(msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("%w: recipient required", ErrDeliveryFailed)
	}
	if msg.Subject == "" {
		return fmt.Errorf("%w: subject required", ErrDeliveryFailed)
	}
	if strings.ContainsAny(msg.To+msg.Subject, "\r\n") {
		return fmt.Errorf("%w: header contains line break", ErrDeliveryFailed)
	}
	return nil
}
