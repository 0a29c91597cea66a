package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

// NotificationRepository persists notifications and per-recipient receipts.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateWithReceipts inserts a notification and one receipt per recipient in
// a single transaction so a partially fanned-out notification never exists.
func (r *NotificationRepository) CreateWithReceipts(ctx context.Context, notification *models.Notification, recipientIDs []string) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertNotification = `INSERT INTO notifications (id, course_id, title, message, posted_by, broadcast, created_at)
		VALUES (:id, :course_id, :title, :message, :posted_by, :broadcast, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertNotification, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	const insertReceipt = `INSERT INTO notification_receipts (id, notification_id, student_id, read_at)
		VALUES ($1, $2, $3, NULL)`
	for _, studentID := range recipientIDs {
		if _, err := tx.ExecContext(ctx, insertReceipt, uuid.NewString(), notification.ID, studentID); err != nil {
			return fmt.Errorf("create notification receipt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notification tx: %w", err)
	}
	return nil
}

// FeedForStudent returns the student's receipts joined with notifications.
func (r *NotificationRepository) FeedForStudent(ctx context.Context, studentID string, unreadOnly bool) ([]models.NotificationFeedItem, error) {
	query := `
SELECT nr.id AS receipt_id, n.course_id, c.name AS course_name, n.title, n.message,
       n.posted_by, n.created_at AS posted_at, nr.read_at
FROM notification_receipts nr
JOIN notifications n ON n.id = nr.notification_id
JOIN courses c ON c.id = n.course_id
WHERE nr.student_id = $1`
	if unreadOnly {
		query += ` AND nr.read_at IS NULL`
	}
	query += ` ORDER BY n.created_at DESC`

	var feed []models.NotificationFeedItem
	if err := r.db.SelectContext(ctx, &feed, query, studentID); err != nil {
		return nil, fmt.Errorf("list notification feed: %w", err)
	}
	return feed, nil
}

// MarkRead stamps the caller's own receipt. Another student's receipt is
// untouchable: the student_id predicate makes the update a no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, receiptID, studentID string, readAt time.Time) error {
	const query = `UPDATE notification_receipts SET read_at = COALESCE(read_at, $3) WHERE id = $1 AND student_id = $2`
	result, err := r.db.ExecContext(ctx, query, receiptID, studentID, readAt)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check read receipt rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
