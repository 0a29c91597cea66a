package models

import "time"

// Notification is a course-scoped message posted by the assigned instructor.
// Broadcast notifications are materialized into one receipt per enrolled
// student at creation time so each recipient owns its read state.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	PostedBy  string    `db:"posted_by" json:"posted_by"`
	Broadcast bool      `db:"broadcast" json:"broadcast"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CreateNotificationRequest posts a course notification. An empty recipient
// list broadcasts to the full roster.
type CreateNotificationRequest struct {
	Title      string   `json:"title" validate:"required,min=1,max=200"`
	Message    string   `json:"message" validate:"required,min=1,max=10000"`
	Recipients []string `json:"recipients,omitempty" validate:"omitempty,dive,uuid4"`
}

// NotificationReceipt tracks one recipient's read state for one notification.
type NotificationReceipt struct {
	ID             string     `db:"id" json:"id"`
	NotificationID string     `db:"notification_id" json:"notification_id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// NotificationFeedItem is a receipt joined with its notification for the
// student feed.
type NotificationFeedItem struct {
	ReceiptID  string     `db:"receipt_id" json:"receipt_id"`
	CourseID   string     `db:"course_id" json:"course_id"`
	CourseName string     `db:"course_name" json:"course_name"`
	Title      string     `db:"title" json:"title"`
	Message    string     `db:"message" json:"message"`
	PostedBy   string     `db:"posted_by" json:"posted_by"`
	PostedAt   time.Time  `db:"posted_at" json:"posted_at"`
	ReadAt     *time.Time `db:"read_at" json:"read_at,omitempty"`
}
