package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionFile describes one uploaded file attached to a submission.
type SubmissionFile struct {
	Name       string `json:"name"`
	StoredPath string `json:"stored_path"`
	Size       int64  `json:"size"`
	Mimetype   string `json:"mimetype"`
}

// SubmissionFiles is stored as a JSONB column.
type SubmissionFiles []SubmissionFile

// Value implements driver.Valuer.
func (f SubmissionFiles) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *SubmissionFiles) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported submission files type %T", src)
	}
}

// Submission holds one student's work for one assignment. The pair
// (assignment_id, student_id) is unique; resubmission overwrites the row and
// clears the grading fields.
type Submission struct {
	ID             string          `db:"id" json:"id"`
	AssignmentID   string          `db:"assignment_id" json:"assignment_id"`
	StudentID      string          `db:"student_id" json:"student_id"`
	Files          SubmissionFiles `db:"files" json:"files"`
	TextSubmission *string         `db:"text_submission" json:"text_submission,omitempty"`
	SubmittedAt    time.Time       `db:"submitted_at" json:"submitted_at"`
	Grade          *float64        `db:"grade" json:"grade"`
	Feedback       *string         `db:"feedback" json:"feedback"`
	GradedAt       *time.Time      `db:"graded_at" json:"graded_at,omitempty"`
	GradedBy       *string         `db:"graded_by" json:"graded_by,omitempty"`
}

// IsGraded reports whether the submission carries a final grade.
func (s Submission) IsGraded() bool {
	return s.Grade != nil
}

// SubmitRequest carries the optional text part of a submission; the files
// ride alongside as multipart file parts.
type SubmitRequest struct {
	TextSubmission string `form:"text_submission" validate:"max=20000"`
}

// GradeRequest carries the grading payload.
type GradeRequest struct {
	Grade    float64 `json:"grade" validate:"gte=0"`
	Feedback *string `json:"feedback,omitempty" validate:"omitempty,max=5000"`
}

// SubmissionDetail enriches a submission with assignment and student context
// used by grading and download authorization.
type SubmissionDetail struct {
	Submission
	CourseID        string  `db:"course_id" json:"course_id"`
	AssignmentTitle string  `db:"assignment_title" json:"assignment_title"`
	TotalPoints     float64 `db:"total_points" json:"total_points"`
	StudentName     string  `db:"student_name" json:"student_name"`
}
