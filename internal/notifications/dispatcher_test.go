package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db/dbtest"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
)

type stubChat struct {
	sent []string
	id   string
	err  error
}

func (s *stubChat) SendChatMessage(ctx context.Context, chatID, text string) (string, error) {
	s.sent = append(s.sent, chatID+"|"+text)
	return s.id, s.err
}

type stubEmail struct {
	to      []string
	subject []string
	err     error
}

func (s *stubEmail) SendEmail(ctx context.Context, to, subject, html string) (string, error) {
	s.to = append(s.to, to)
	s.subject = append(s.subject, subject)
	return "mail-1", s.err
}

func seedRecipient(t *testing.T, db *gorm.DB, chat, email bool) models.User {
	t.Helper()
	telegramID := "5501"
	address := "customer@example.com"
	user := models.User{
		ID:              uuid.New(),
		Name:            "Sara",
		TelegramID:      &telegramID,
		Email:           &address,
		Role:            enums.RoleCustomer,
		IsActive:        true,
		MembershipLevel: enums.MembershipBronze,
		NotifyChat:      chat,
		NotifyEmail:     email,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func newTestDispatcher(t *testing.T, db *gorm.DB, chat ChatSender, email EmailSender) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherParams{
		Repository: NewRepository(db),
		Chat:       chat,
		Email:      email,
		Kitchen:    config.KitchenConfig{Email: "kitchen@example.com", AppURL: "http://kitchen.local"},
	})
	require.NoError(t, err)
	return d
}

func TestDispatchPersistsAndMarksChatDelivery(t *testing.T) {
	db := dbtest.Open(t)
	user := seedRecipient(t, db, true, true)
	chat := &stubChat{id: "777"}
	mail := &stubEmail{err: errors.New("smtp down")}
	d := newTestDispatcher(t, db, chat, mail)

	result, err := d.Dispatch(context.Background(), user.ID, Message{
		Type:  enums.NotificationTypeSystem,
		Title: "مرحبا",
		Body:  "نص",
	})
	require.NoError(t, err)
	require.Len(t, result.Channels, 2)
	require.True(t, result.Delivered)
	require.Error(t, result.Err())
	require.Contains(t, result.Err().Error(), "email")
	require.Equal(t, []string{"5501|*مرحبا*\n\nنص"}, chat.sent)
	require.Equal(t, []string{"customer@example.com"}, mail.to)

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", result.NotificationID).Error)
	require.True(t, stored.Delivered)
	require.NotNil(t, stored.DeliveredAt)
	require.NotNil(t, stored.ChatMessageID)
	require.Equal(t, "777", *stored.ChatMessageID)
}

func TestDispatchChatFailureKeepsNotification(t *testing.T) {
	db := dbtest.Open(t)
	user := seedRecipient(t, db, true, false)
	d := newTestDispatcher(t, db, &stubChat{err: errors.New("blocked by user")}, &stubEmail{})

	result, err := d.Dispatch(context.Background(), user.ID, Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	require.Len(t, result.Channels, 1)
	require.False(t, result.Delivered)

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", result.NotificationID).Error)
	require.False(t, stored.Delivered)
	require.Nil(t, stored.DeliveredAt)
	require.Equal(t, enums.NotificationTypeSystem, stored.Type)
}

func TestDispatchSkipsDisabledChannels(t *testing.T) {
	db := dbtest.Open(t)
	user := seedRecipient(t, db, false, false)
	chat := &stubChat{id: "1"}
	d := newTestDispatcher(t, db, chat, &stubEmail{})

	result, err := d.Dispatch(context.Background(), user.ID, Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	require.Empty(t, result.Channels)
	require.NoError(t, result.Err())
	require.Empty(t, chat.sent)
}

func TestDispatchUnknownUser(t *testing.T) {
	db := dbtest.Open(t)
	d := newTestDispatcher(t, db, nil, nil)

	_, err := d.Dispatch(context.Background(), uuid.New(), Message{Title: "t"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestNotifyKitchenUsesConfiguredAddress(t *testing.T) {
	db := dbtest.Open(t)
	mail := &stubEmail{}
	d := newTestDispatcher(t, db, nil, mail)

	res := d.NotifyKitchen(context.Background(), "طلب جديد: #abcdef", "<p>x</p>")
	require.NoError(t, res.Err)
	require.Equal(t, "mail-1", res.MessageID)
	require.Equal(t, []string{"kitchen@example.com"}, mail.to)

	noMail := newTestDispatcher(t, db, nil, nil)
	require.Error(t, noMail.NotifyKitchen(context.Background(), "s", "h").Err)
}

func TestRepositoryStampsReadAndDeliveredOnce(t *testing.T) {
	db := dbtest.Open(t)
	user := seedRecipient(t, db, false, false)
	repo := NewRepository(db)
	ctx := context.Background()

	row := &models.Notification{UserID: user.ID, Type: enums.NotificationTypeOrder, Title: "t", Message: "m"}
	require.NoError(t, repo.Create(ctx, row))

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	marked, err := repo.MarkDelivered(ctx, row.ID, nil, first)
	require.NoError(t, err)
	require.True(t, marked)
	marked, err = repo.MarkDelivered(ctx, row.ID, nil, later)
	require.NoError(t, err)
	require.False(t, marked)

	res, err := repo.MarkRead(ctx, user.ID, row.ID, first)
	require.NoError(t, err)
	require.True(t, res.Updated)
	res, err = repo.MarkRead(ctx, user.ID, row.ID, later)
	require.NoError(t, err)
	require.False(t, res.Updated)
	require.True(t, res.Found)

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", row.ID).Error)
	require.True(t, stored.ReadAt.Equal(first))
	require.True(t, stored.DeliveredAt.Equal(first))

	res, err = repo.MarkRead(ctx, uuid.New(), row.ID, later)
	require.NoError(t, err)
	require.False(t, res.Found)
}
