package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

const maxListLimit = 100

// Inbox persists in-app notifications. It is also the IN_APP delivery channel.
type Inbox struct {
	db  *gorm.DB
	now func() time.Time
}

func NewInbox(db *gorm.DB) *Inbox {
	return &Inbox{db: db, now: time.Now}
}

func (i *Inbox) Name() string { return ChannelInApp }

func (i *Inbox) Deliver(ctx context.Context, d Delivery) error {
	n := &Notification{
		ID:         d.NotificationID,
		UserID:     d.UserID,
		DocumentID: d.DocumentID(),
		Event:      d.Event,
		Title:      d.Title,
		Message:    d.Message,
		CreatedAt:  d.CreatedAt,
	}
	if d.Payload != nil {
		n.Payload = datatypes.JSONMap(d.Payload)
	}
	if err := i.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification record: %w", err)
	}
	return nil
}

// List returns a user's notifications, newest first.
func (i *Inbox) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error) {
	limit := opts.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := i.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if opts.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var out []Notification
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to get user notifications: %w", err)
	}
	return out, nil
}

func (i *Inbox) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := i.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the user's notifications as read. Marking twice is a no-op.
func (i *Inbox) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	result := i.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read_at", gorm.Expr("COALESCE(read_at, ?)", i.now().UTC()))
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (i *Inbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := i.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", i.now().UTC())
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Prune deletes read notifications older than the cutoff.
func (i *Inbox) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := i.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND created_at < ?", before).
		Delete(&Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}
