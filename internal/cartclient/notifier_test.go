package cartclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestChangeNotificationsBatchPerCategory(t *testing.T) {
	assert.Empty(t, changeNotifications(ChangeLog{}))

	only := changeNotifications(ChangeLog{Updated: []AdjustedItem{{ProductID: "p1"}, {ProductID: "p2"}}})
	assert.Equal(t, []Notification{{
		Kind:    KindWarning,
		Title:   "Cart quantities updated",
		Message: "2 item(s) quantity reduced due to limited stock",
	}}, only)
}

func TestLogNotifierLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	notifier.Notify(Notification{Kind: KindInfo, Title: "Added to cart"})
	notifier.Notify(Notification{Kind: KindWarning, Title: "Items removed from cart"})
	notifier.Notify(insufficientStockNotification(3))

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
		assert.Equal(t, "Only 3 items available", entries[2].ContextMap()["message"])
	}
}
