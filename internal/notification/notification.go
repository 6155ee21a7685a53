package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/edupath/onboarding/internal/phone"
)

const (
	// KindOTP marks a one-time passcode delivery.
	KindOTP = "otp"
)

// ErrDelivery is wrapped around every provider failure.
var ErrDelivery = errors.New("sms delivery failed")

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Receipt is the provider's acknowledgement of an accepted message.
type Receipt struct {
	ProviderID string
	Status     string
}

// Sender delivers text messages to a phone number.
type Sender interface {
	Send(ctx context.Context, message Message) (Receipt, error)
}

// LoggerSender writes messages to the logger instead of delivering them.
// It is used in development and test mode when Twilio is not configured.
type LoggerSender struct {
	logger *slog.Logger
}

// NewLoggerSender constructs a logging sender.
func NewLoggerSender(logger *slog.Logger) *LoggerSender {
	return &LoggerSender{logger: logger}
}

// Send logs the message kind and masked destination. The body is only logged at debug level.
func (n *LoggerSender) Send(ctx context.Context, message Message) (Receipt, error) {
	if n == nil || n.logger == nil {
		return Receipt{Status: "discarded"}, nil
	}
	n.logger.InfoContext(ctx, "notification", "kind", message.Kind, "destination", phone.Mask(message.Destination))
	n.logger.DebugContext(ctx, "notification body", "kind", message.Kind, "body", message.Body)
	return Receipt{Status: "logged"}, nil
}
