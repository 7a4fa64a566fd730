package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

const maxErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event *models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(event).Error
}

// FetchPending returns the oldest unpublished rows that still have attempts left.
// On Postgres the rows are locked with SKIP LOCKED so concurrent publishers split the work.
func (r *Repository) FetchPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	q := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
			"last_error":   nil,
		}).Error
}

func (r *Repository) MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error {
	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkDead records cause and exhausts the row's attempts so FetchPending skips it.
func (r *Repository) MarkDead(tx *gorm.DB, id uuid.UUID, cause error, maxAttempts int) error {
	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": maxAttempts,
		}).Error
}

// DeletePublishedBefore removes published rows older than cutoff, plus rows that
// exhausted maxAttempts without ever publishing.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts int) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	q := conn.WithContext(ctx).Where("created_at < ?", cutoff)
	if maxAttempts > 0 {
		q = q.Where("published_at IS NOT NULL OR attempt_count >= ?", maxAttempts)
	} else {
		q = q.Where("published_at IS NOT NULL")
	}
	res := q.Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// CountPending is used by readiness checks and tests.
func (r *Repository) CountPending() (int64, error) {
	var n int64
	err := r.db.Model(&models.OutboxEvent{}).Where("published_at IS NULL").Count(&n).Error
	return n, err
}
