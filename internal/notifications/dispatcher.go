package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/metrics"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

// ChatSender delivers a text message to a chat id (Telegram).
type ChatSender interface {
	SendChatMessage(ctx context.Context, chatID, text string) (string, error)
}

// EmailSender delivers an HTML e-mail.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html string) (string, error)
}

// Message is one notification to persist and fan out. ChatText overrides the
// default "*title*\n\nbody" chat rendering.
type Message struct {
	Type         enums.NotificationType
	Title        string
	Body         string
	ChatText     string
	RelatedID    *uuid.UUID
	RelatedModel string
	Action       *types.NotificationAction
}

// ChannelResult is the outcome of one delivery attempt.
type ChannelResult struct {
	Channel   enums.NotificationChannel
	MessageID string
	Err       error
}

// DispatchResult lists every channel attempted for a persisted notification.
type DispatchResult struct {
	NotificationID uuid.UUID
	Delivered      bool
	Channels       []ChannelResult
}

// Err folds channel failures together; nil when every attempt succeeded.
func (r DispatchResult) Err() error {
	var err error
	for _, ch := range r.Channels {
		if ch.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", ch.Channel, ch.Err))
		}
	}
	return err
}

type DispatcherParams struct {
	Repository Repository
	Chat       ChatSender
	Email      EmailSender
	Kitchen    config.KitchenConfig
	Metrics    *metrics.NotificationMetrics
	Logger     *logger.Logger
}

// Dispatcher persists notifications and pushes them to the channels each user enabled.
type Dispatcher struct {
	repo    Repository
	chat    ChatSender
	email   EmailSender
	kitchen config.KitchenConfig
	metrics *metrics.NotificationMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewDispatcher wires the dispatcher. Chat and Email are optional; a missing
// sender just means that channel is never attempted.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{
		repo:    params.Repository,
		chat:    params.Chat,
		email:   params.Email,
		kitchen: params.Kitchen,
		metrics: params.Metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Dispatch stores the notification then tries each enabled channel. Only a
// failure to look up the user or persist the row is returned as an error;
// channel failures are reported in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, userID uuid.UUID, msg Message) (DispatchResult, error) {
	if userID == uuid.Nil {
		return DispatchResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := d.repo.FindRecipient(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DispatchResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return DispatchResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification recipient")
	}

	msgType := msg.Type
	if !msgType.IsValid() {
		msgType = enums.NotificationTypeSystem
	}
	row := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      msgType,
		Title:     msg.Title,
		Message:   msg.Body,
		RelatedID: msg.RelatedID,
		Action:    msg.Action,
	}
	if msg.RelatedModel != "" {
		model := msg.RelatedModel
		row.RelatedModel = &model
	}
	if err := d.repo.Create(ctx, row); err != nil {
		return DispatchResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}

	result := DispatchResult{NotificationID: row.ID}

	if user.NotifyChat && user.TelegramID != nil && d.chat != nil {
		ch := d.send(enums.NotificationChannelChat, func() (string, error) {
			return d.chat.SendChatMessage(ctx, *user.TelegramID, chatText(msg))
		})
		result.Channels = append(result.Channels, ch)
		if ch.Err == nil {
			id := ch.MessageID
			marked, err := d.repo.MarkDelivered(ctx, row.ID, &id, d.now().UTC())
			if err != nil {
				d.logg.Warn(d.logg.WithField(ctx, "notification_id", row.ID.String()), "failed to mark notification delivered: "+err.Error())
			}
			result.Delivered = marked
		}
	}

	if user.NotifyEmail && user.Email != nil && strings.TrimSpace(*user.Email) != "" && d.email != nil {
		result.Channels = append(result.Channels, d.send(enums.NotificationChannelEmail, func() (string, error) {
			return d.email.SendEmail(ctx, *user.Email, msg.Title, emailHTML(msg))
		}))
	}

	return result, nil
}

// NotifyKitchen e-mails the configured kitchen address. Nothing is persisted.
func (d *Dispatcher) NotifyKitchen(ctx context.Context, subject, html string) ChannelResult {
	if d.email == nil || strings.TrimSpace(d.kitchen.Email) == "" {
		return ChannelResult{Channel: enums.NotificationChannelEmail, Err: errors.New("kitchen e-mail not configured")}
	}
	return d.send(enums.NotificationChannelEmail, func() (string, error) {
		return d.email.SendEmail(ctx, d.kitchen.Email, subject, html)
	})
}

// KitchenAppURL is linked from kitchen e-mails.
func (d *Dispatcher) KitchenAppURL() string {
	return d.kitchen.AppURL
}

// Log writes one line per failed channel. Callers hand every result here
// instead of returning it.
func (d *Dispatcher) Log(ctx context.Context, result DispatchResult, err error) {
	if err != nil {
		d.logg.Error(ctx, "notification dispatch failed", err)
		return
	}
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"notification_id": result.NotificationID.String(),
		"channels":        len(result.Channels),
		"delivered":       result.Delivered,
	})
	if chErr := result.Err(); chErr != nil {
		d.logg.Warn(logCtx, "notification channel failures: "+chErr.Error())
		return
	}
	d.logg.Debug(logCtx, "notification dispatched")
}

// LogChannel records a single kitchen send outcome.
func (d *Dispatcher) LogChannel(ctx context.Context, result ChannelResult) {
	logCtx := d.logg.WithField(ctx, "channel", string(result.Channel))
	if result.Err != nil {
		d.logg.Warn(logCtx, "kitchen notification failed: "+result.Err.Error())
		return
	}
	d.logg.Debug(d.logg.WithField(logCtx, "message_id", result.MessageID), "kitchen notified")
}

func (d *Dispatcher) send(channel enums.NotificationChannel, fn func() (string, error)) ChannelResult {
	id, err := fn()
	d.metrics.ObserveSend(string(channel), err)
	return ChannelResult{Channel: channel, MessageID: id, Err: err}
}
