package cartclient

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// NotificationKind classifies a user-facing message.
type NotificationKind string

const (
	KindInfo    NotificationKind = "info"
	KindWarning NotificationKind = "warning"
	KindError   NotificationKind = "error"
)

// Notification is one toast shown to the shopper.
type Notification struct {
	Kind    NotificationKind
	Title   string
	Message string
}

// Notifier surfaces notifications to the shopper.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f.
func (f NotifierFunc) Notify(notification Notification) {
	f(notification)
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier backed by logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification at a level matching its kind.
func (n *LogNotifier) Notify(notification Notification) {
	fields := []zap.Field{
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
	}
	switch notification.Kind {
	case KindError:
		n.logger.Error("cart notification", fields...)
	case KindWarning:
		n.logger.Warn("cart notification", fields...)
	default:
		n.logger.Info("cart notification", fields...)
	}
}

// RecordingNotifier keeps every notification in memory.
type RecordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

// Notify records the notification.
func (r *RecordingNotifier) Notify(notification Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, notification)
}

// Notifications returns a copy of the recorded notifications.
func (r *RecordingNotifier) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

// changeNotifications batches a change log into at most one notification per
// category.
func changeNotifications(changes ChangeLog) []Notification {
	var notifications []Notification
	if count := len(changes.Removed); count > 0 {
		notifications = append(notifications, Notification{
			Kind:    KindWarning,
			Title:   "Items removed from cart",
			Message: fmt.Sprintf("%d item(s) removed due to stock unavailability", count),
		})
	}
	if count := len(changes.Updated); count > 0 {
		notifications = append(notifications, Notification{
			Kind:    KindWarning,
			Title:   "Cart quantities updated",
			Message: fmt.Sprintf("%d item(s) quantity reduced due to limited stock", count),
		})
	}
	return notifications
}

func insufficientStockNotification(available int) Notification {
	return Notification{
		Kind:    KindError,
		Title:   "Insufficient stock",
		Message: fmt.Sprintf("Only %d items available", available),
	}
}
