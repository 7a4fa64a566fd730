package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type purgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// retentionJob hard-deletes rows older than a number of days in one transaction.
type retentionJob struct {
	name   string
	logg   *logger.Logger
	db     txRunner
	days   int
	purge  purgeFunc
	fields map[string]any
	now    func() time.Time
}

func newRetentionJob(name string, logg *logger.Logger, db txRunner, days, fallbackDays int, purge purgeFunc) (*retentionJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("%s: logger required", name)
	}
	if db == nil {
		return nil, fmt.Errorf("%s: db runner required", name)
	}
	if days <= 0 {
		days = fallbackDays
	}
	return &retentionJob{name: name, logg: logg, db: db, days: days, purge: purge, now: time.Now}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.days)
}

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = j.purge(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}

	fields := map[string]any{"cutoff": cutoff, "retention_days": j.days, "rows_deleted": deleted}
	for k, v := range j.fields {
		fields[k] = v
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "retention purge complete")
	return nil
}
