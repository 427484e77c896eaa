package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultOutboxRetention       = 30 * 24 * time.Hour

	// Shorter windows are refused.
	minRetention = 24 * time.Hour
)

// purgeFunc deletes rows older than cutoff inside tx and reports how many went.
type purgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository notificationPurger
	Retention  time.Duration
}

type notificationPurger interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewNotificationCleanupJob drops notifications created before the retention
// window, read or not.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("notifications repository required")
	}
	return newRetentionJob("notification-cleanup", params.Logger, params.DB,
		params.Retention, defaultNotificationRetention, params.Repository.DeleteOlderThan)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPurger
	Retention  time.Duration
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob drops published outbox rows. Pending rows are never
// touched regardless of age.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	return newRetentionJob("outbox-retention", params.Logger, params.DB,
		params.Retention, defaultOutboxRetention, params.Repository.DeletePublishedBefore)
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	purge     purgeFunc
	retention time.Duration
	now       func() time.Time
}

func newRetentionJob(name string, logg *logger.Logger, db txRunner, retention, fallback time.Duration, purge purgeFunc) (Job, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if db == nil {
		return nil, errors.New("db runner required")
	}
	if retention == 0 {
		retention = fallback
	}
	if retention < minRetention {
		return nil, fmt.Errorf("%s: retention %s is below the %s minimum", name, retention, minRetention)
	}
	return &retentionJob{
		name:      name,
		logg:      logg,
		db:        db,
		purge:     purge,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.purge(ctx, tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":          j.name,
		"cutoff":       cutoff.Format(time.RFC3339),
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention purge finished")
	return nil
}
