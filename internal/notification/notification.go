// Package notification delivers push notifications to holder devices.
// Delivery is best effort: callers log failures and move on.
package notification

import (
	"context"
	"log/slog"
	"time"
)

// Texts of the notification sent when a credential lands in the wallet.
const (
	NewCredentialTitle = "New Credential"
	NewCredentialBody  = "A new verifiable credential is in your wallet"
)

// Notification is one push message for one device.
type Notification struct {
	DeviceToken string    `json:"device_token"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier only logs notifications. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier writing to logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Notification) error {
	n.logger.InfoContext(ctx, "push_notification",
		"device_token", redact(msg.DeviceToken),
		"title", msg.Title,
	)
	return nil
}

// redact keeps the last four characters of a device token.
func redact(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
