package models

import "time"

// Assignment belongs to one course. The optional single attachment is stored
// under the materials directory; the original filename is retained for display.
type Assignment struct {
	ID                 string    `db:"id" json:"id"`
	CourseID           string    `db:"course_id" json:"course_id"`
	Title              string    `db:"title" json:"title"`
	Description        string    `db:"description" json:"description"`
	DueDate            time.Time `db:"due_date" json:"due_date"`
	TotalPoints        float64   `db:"total_points" json:"total_points"`
	AttachmentPath     *string   `db:"attachment_path" json:"-"`
	AttachmentName     *string   `db:"attachment_name" json:"attachment_name,omitempty"`
	AttachmentSize     *int64    `db:"attachment_size" json:"attachment_size,omitempty"`
	AttachmentMimetype *string   `db:"attachment_mimetype" json:"attachment_mimetype,omitempty"`
	CreatedBy          string    `db:"created_by" json:"created_by"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// CreateAssignmentRequest carries the multipart form fields for authoring an
// assignment. The attachment, when present, rides alongside as a file part.
type CreateAssignmentRequest struct {
	Title       string    `form:"title" validate:"required,min=3,max=200"`
	Description string    `form:"description" validate:"max=5000"`
	DueDate     time.Time `form:"due_date" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
	TotalPoints float64   `form:"total_points" validate:"required,gt=0"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// AssignmentWithSubmission is the student view of an assignment joined with
// the caller's own submission, if any.
type AssignmentWithSubmission struct {
	Assignment
	Submitted     bool       `json:"submitted"`
	Graded        bool       `json:"graded"`
	Grade         *float64   `json:"grade,omitempty"`
	Feedback      *string    `json:"feedback,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	SubmissionID  *string    `json:"submission_id,omitempty"`
	AttachmentURL *string    `json:"attachment_url,omitempty"`
	FileURLs      []string   `json:"file_urls,omitempty"`
}
