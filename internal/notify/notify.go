// Package notify delivers security notifications to account owners.
package notify

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindNewDeviceLogin is sent when a login binds a device the user has not
	// used before.
	KindNewDeviceLogin = "new_device_login"
	// KindTwoFactorEnabled is sent when two-factor enrollment completes.
	KindTwoFactorEnabled = "two_factor_enabled"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	DeviceName  string
	DeviceType  int
	OccurredAt  time.Time
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger. It is the
// default until a mail transport is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.Time("occurred_at", message.OccurredAt),
	}
	if message.DeviceName != "" {
		attrs = append(attrs, slog.String("device_name", message.DeviceName), slog.Int("device_type", message.DeviceType))
	}
	n.logger.InfoContext(ctx, "security notification", attrs...)
	return nil
}

// Nop discards every message.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, Message) error { return nil }

// Deliver sends message and logs, rather than returns, a delivery failure.
// Notifications never fail the operation that triggered them.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, message Message) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, message); err != nil && logger != nil {
		logger.WarnContext(ctx, "notification delivery failed", slog.String("kind", message.Kind), slog.Any("error", err))
	}
}
