package services

import (
	"client-registry/internal/config"
	"client-registry/internal/models"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedRequest struct {
	path string
	body map[string]interface{}
}

func captureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var got []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, capturedRequest{path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), got...)
	}
}

func sampleEvent() models.NotificationEvent {
	return models.NotificationEvent{
		ID:        "evt-1",
		Timestamp: testToday,
		Category:  models.CategoryPlanExpiring,
		Severity:  models.SeverityWarning,
		Message:   "Service plan for Ivanova Maria expires in 5 days (2026-10-21)",
		ClientID:  3,
	}
}

func TestSendNotification_WebhookAndTelegram(t *testing.T) {
	db := newTestDB(t)
	hook, hookRequests := captureServer(t, http.StatusOK)
	tg, tgRequests := captureServer(t, http.StatusOK)

	svc := NewNotifyService(db, &config.NotificationsConfig{
		Webhook:  config.WebhookConfig{Enabled: true, URL: hook.URL + "/alerts"},
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "T0K", ChatID: "42", APIURL: tg.URL},
	}, zap.NewNop())
	assert.Equal(t, []string{"webhook", "telegram"}, svc.Channels())

	require.NoError(t, svc.SendNotification(context.Background(), sampleEvent()))

	hooks := hookRequests()
	require.Len(t, hooks, 1)
	assert.Equal(t, "/alerts", hooks[0].path)
	assert.Equal(t, "plan-expiring", hooks[0].body["category"])
	assert.Equal(t, "warning", hooks[0].body["severity"])
	assert.Equal(t, float64(3), hooks[0].body["client_id"])

	tgs := tgRequests()
	require.Len(t, tgs, 1)
	assert.Equal(t, "/botT0K/sendMessage", tgs[0].path)
	assert.Equal(t, "42", tgs[0].body["chat_id"])
	assert.Contains(t, tgs[0].body["text"], "Ivanova Maria")

	history, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, h := range history {
		assert.Equal(t, "success", h.Status)
		assert.Equal(t, "plan-expiring", h.Category)
	}
}

func TestSendNotification_FailureRecorded(t *testing.T) {
	db := newTestDB(t)
	hook, _ := captureServer(t, http.StatusInternalServerError)

	svc := NewNotifyService(db, &config.NotificationsConfig{
		Webhook: config.WebhookConfig{Enabled: true, URL: hook.URL},
	}, zap.NewNop())

	err := svc.SendNotification(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	history, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "failed", history[0].Status)
	assert.Equal(t, "webhook", history[0].Channel)
}

func TestSendNotification_AnySuccessStatusIsDelivered(t *testing.T) {
	for _, status := range []int{http.StatusAccepted, http.StatusNoContent} {
		db := newTestDB(t)
		hook, _ := captureServer(t, status)
		tg, _ := captureServer(t, status)

		svc := NewNotifyService(db, &config.NotificationsConfig{
			Webhook:  config.WebhookConfig{Enabled: true, URL: hook.URL},
			Telegram: config.TelegramConfig{Enabled: true, BotToken: "T0K", ChatID: "42", APIURL: tg.URL},
		}, zap.NewNop())

		require.NoError(t, svc.SendNotification(context.Background(), sampleEvent()), status)

		history, err := svc.History(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, history, 2)
		for _, h := range history {
			assert.Equal(t, "success", h.Status, "%s answered %d", h.Channel, status)
		}
	}
}

func TestNotifyService_AsQueueDispatcher(t *testing.T) {
	db := newTestDB(t)
	hook, hookRequests := captureServer(t, http.StatusOK)

	notify := NewNotifyService(db, &config.NotificationsConfig{}, zap.NewNop())
	assert.Empty(t, notify.Channels())

	notify.Reload(&config.NotificationsConfig{Webhook: config.WebhookConfig{Enabled: true, URL: hook.URL}})
	queue := NewNotificationService(zap.NewNop(), notify, fixedClock(testToday))

	_, added := queue.Add(models.CategoryContractMissing, models.SeverityWarning, "1 client has no contract number: A B", 0)
	require.True(t, added)
	_, added = queue.Add(models.CategoryContractMissing, models.SeverityWarning, "1 client has no contract number: A B", 0)
	require.False(t, added)

	assert.Len(t, hookRequests(), 1)
}
