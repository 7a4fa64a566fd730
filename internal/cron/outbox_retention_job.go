package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const outboxRetentionDays = 14

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRetentionRepo
	Retention   int
	MaxAttempts int
}

// NewOutboxRetentionJob trims published rows, and dead rows once MaxAttempts is set.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("outbox-retention: repository required")
	}
	repo, maxAttempts := params.Repository, params.MaxAttempts
	job, err := newRetentionJob("outbox-retention", params.Logger, params.DB, params.Retention, outboxRetentionDays,
		func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return repo.DeletePublishedBefore(ctx, tx, cutoff, maxAttempts)
		})
	if err != nil {
		return nil, err
	}
	job.fields = map[string]any{"max_attempts": maxAttempts}
	return job, nil
}
