package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/pkg/constants"
)

// NotificationRepository persists in-app notifications
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = "id, recipient_id, title, body, event_type, instance_id, is_read, created_at"

// Insert creates a notification row
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		constants.TableNotification, notificationColumns)

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.RecipientID, n.Title, n.Body, n.EventType, n.InstanceID, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListUnreadByRecipient returns unread notifications for a user, newest first
func (r *NotificationRepository) ListUnreadByRecipient(ctx context.Context, recipientID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE recipient_id = ? AND is_read = false
		ORDER BY created_at DESC LIMIT ?`,
		notificationColumns, constants.TableNotification)

	rows, err := r.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		var body, instanceID sql.NullString
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &body, &n.EventType,
			&instanceID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Body = body.String
		n.InstanceID = instanceID.String
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// MarkRead marks a notification as read, scoped to its recipient
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	query := fmt.Sprintf("UPDATE %s SET is_read = true WHERE id = ? AND recipient_id = ?",
		constants.TableNotification)
	_, err := r.db.ExecContext(ctx, query, id, recipientID)
	return err
}
