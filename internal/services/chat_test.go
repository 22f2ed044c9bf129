package services

import (
	"client-registry/internal/config"
	"client-registry/internal/models"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chatFixture struct {
	svc   *ChatService
	clock *fakeClock
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := newTestDB(t)
	clock := &fakeClock{now: testToday}

	cfg := config.Default().Auth
	auth := NewAuthService(db, &cfg, NewTokenFile(filepath.Join(t.TempDir(), "token.json"), clock.Now), zap.NewNop(), clock.Now)
	require.NoError(t, auth.EnsureDefaultAdmin(context.Background(), "admin", "s3cret!"))
	require.NoError(t, db.Create(&models.User{
		Username: "social1", PasswordHash: mustHash(t, auth, "pw123456"), FullName: "Social Worker", Role: "employee", IsActive: true,
	}).Error)

	return &chatFixture{svc: NewChatService(db, zap.NewNop(), 3, clock.Now), clock: clock}
}

func TestChat_SendAndMessages(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	_, err := f.svc.Send(ctx, "admin", "   ")
	assert.ErrorIs(t, err, ErrValidation)

	first, err := f.svc.Send(ctx, "admin", " Meeting at ten ")
	require.NoError(t, err)
	assert.Equal(t, "Meeting at ten", first.Text)
	assert.Equal(t, models.ChatText, first.Kind)

	f.clock.Advance(time.Minute)
	_, err = f.svc.Send(ctx, "social1", "On my way")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.SendAlert(ctx, "Plan review overdue")
	require.NoError(t, err)

	msgs, err := f.svc.Messages(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Plan review overdue", msgs[0].Text)
	assert.Equal(t, SystemSender, msgs[0].Username)
	assert.Equal(t, models.ChatAlert, msgs[0].Kind)
	assert.Empty(t, msgs[0].FullName)
	assert.Equal(t, "Social Worker", msgs[1].FullName)
	assert.Equal(t, "Administrator", msgs[2].FullName)

	page, err := f.svc.Messages(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)
}

func TestChat_UnreadAndMarkRead(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	_, err := f.svc.Send(ctx, "admin", "hello")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, "social1", "hi")
	require.NoError(t, err)
	_, err = f.svc.SendSystem(ctx, "scan finished")
	require.NoError(t, err)

	// Own messages never count as unread.
	n, err := f.svc.UnreadCount(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, f.svc.MarkRead(ctx, "admin"))
	n, err = f.svc.UnreadCount(ctx, "admin")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Reading is per operator.
	n, err = f.svc.UnreadCount(ctx, "social1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.svc.Send(ctx, "social1", "one more")
	require.NoError(t, err)
	n, err = f.svc.UnreadCount(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestChat_OnlineUsers(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	require.NoError(t, f.svc.SetOnline(ctx, "social1", true))
	require.NoError(t, f.svc.SetOnline(ctx, "admin", true))
	require.NoError(t, f.svc.MarkRead(ctx, "admin"))

	users, err := f.svc.OnlineUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, "Administrator", users[0].FullName)
	assert.Equal(t, "employee", users[1].Role)

	require.NoError(t, f.svc.SetOnline(ctx, "admin", false))
	users, err = f.svc.OnlineUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "social1", users[0].Username)

	// A missed heartbeat takes the operator offline.
	f.clock.Advance(OnlineWindow + time.Minute)
	users, err = f.svc.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestChat_DailyGreeting(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	posted, err := f.svc.SendDailyGreeting(ctx)
	require.NoError(t, err)
	assert.True(t, posted)

	f.clock.Advance(3 * time.Hour)
	posted, err = f.svc.SendDailyGreeting(ctx)
	require.NoError(t, err)
	assert.False(t, posted)

	f.clock.Advance(24 * time.Hour)
	posted, err = f.svc.SendDailyGreeting(ctx)
	require.NoError(t, err)
	assert.True(t, posted)

	msgs, err := f.svc.Messages(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Good morning! Today is 17.10.2026. Have a good working day.", msgs[0].Text)
	assert.Equal(t, models.ChatSystem, msgs[0].Kind)
}

func TestChat_ScanEventsAndClear(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	rec := &recordingDispatcher{}
	queue := NewNotificationService(zap.NewNop(), Dispatchers{rec, f.svc}, f.clock.Now)
	queue.Add(models.CategoryPlanExpiring, models.SeverityWarning, "Service plan for A B expires in 3 days (2026-10-19)", 1)
	queue.Add(models.CategoryBirthdayUpcoming, models.SeverityInfo, "A B turns 80 in 20 days (05.11)", 1)

	assert.Len(t, rec.events, 2)
	msgs, err := f.svc.Messages(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	kinds := map[string]models.ChatKind{}
	for _, m := range msgs {
		kinds[m.Text] = m.Kind
	}
	assert.Equal(t, models.ChatAlert, kinds["Service plan for A B expires in 3 days (2026-10-19)"])
	assert.Equal(t, models.ChatSystem, kinds["A B turns 80 in 20 days (05.11)"])

	removed, err := f.svc.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	msgs, err = f.svc.Messages(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
