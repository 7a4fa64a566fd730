package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const notificationRetentionDays = 30

type notificationsCleanupRepo interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository notificationsCleanupRepo
	Retention  int
}

// NewNotificationCleanupJob purges read or dismissed notifications past the retention window.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("notification-cleanup: repository required")
	}
	job, err := newRetentionJob("notification-cleanup", params.Logger, params.DB,
		params.Retention, notificationRetentionDays, params.Repository.DeleteOlderThan)
	if err != nil {
		return nil, err
	}
	return job, nil
}
