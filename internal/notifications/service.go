package notifications

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

const (
	maxTitleLen   = 200
	maxMessageLen = 1000
)

// Service is the recipient-facing inbox plus the write path used by event listeners.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	Delete(ctx context.Context, recipientID, notificationID uuid.UUID) error
	Notify(ctx context.Context, inputs ...NotifyInput) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

type ListParams struct {
	RecipientID uuid.UUID
	Limit       int
	Cursor      string
	UnreadOnly  bool
}

type ListResult struct {
	Items       []NotificationDTO `json:"items"`
	Cursor      string            `json:"cursor"`
	UnreadCount int64             `json:"unread_count"`
}

type NotificationDTO struct {
	ID                uuid.UUID              `json:"id"`
	Type              enums.NotificationType `json:"type"`
	Title             string                 `json:"title"`
	Message           string                 `json:"message"`
	RelatedEntityType *enums.EntityType      `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID             `json:"related_entity_id,omitempty"`
	IsRead            bool                   `json:"is_read"`
	ReadAt            *time.Time             `json:"read_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// NotifyInput is one inbox entry to write.
type NotifyInput struct {
	RecipientID uuid.UUID
	Type        enums.NotificationType
	Title       string
	Message     string
	EntityType  enums.EntityType
	EntityID    uuid.UUID
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.RecipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}

	query := listNotificationsParams{
		RecipientID: params.RecipientID,
		Limit:       params.Limit,
		UnreadOnly:  params.UnreadOnly,
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, params.RecipientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}

	out := &ListResult{Items: make([]NotificationDTO, 0, len(rows)), UnreadCount: unread}
	for i := range rows {
		out.Items = append(out.Items, toDTO(&rows[i]))
	}
	if next != nil {
		out.Cursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

func (s *service) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, recipientID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if recipientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	count, err := s.repo.MarkAllRead(ctx, recipientID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) Delete(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	deleted, err := s.repo.SoftDelete(ctx, recipientID, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

// Notify persists one row per input. Recipients that are nil are skipped.
func (s *service) Notify(ctx context.Context, inputs ...NotifyInput) error {
	rows := make([]models.Notification, 0, len(inputs))
	for _, in := range inputs {
		if in.RecipientID == uuid.Nil {
			continue
		}
		if !in.Type.IsValid() {
			return errors.New("invalid notification type " + string(in.Type))
		}
		row := models.Notification{
			RecipientID: in.RecipientID,
			Type:        in.Type,
			Title:       truncate(strings.TrimSpace(in.Title), maxTitleLen),
			Message:     truncate(strings.TrimSpace(in.Message), maxMessageLen),
		}
		if in.EntityType.IsValid() && in.EntityID != uuid.Nil {
			entityType, entityID := in.EntityType, in.EntityID
			row.RelatedEntityType = &entityType
			row.RelatedEntityID = &entityID
		}
		rows = append(rows, row)
	}
	return s.repo.CreateBatch(ctx, rows)
}

func toDTO(n *models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:                n.ID,
		Type:              n.Type,
		Title:             n.Title,
		Message:           n.Message,
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		IsRead:            n.IsRead,
		ReadAt:            n.ReadAt,
		CreatedAt:         n.CreatedAt,
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
