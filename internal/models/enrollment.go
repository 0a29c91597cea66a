package models

import "time"

// EnrollmentStatus is the single payment lifecycle vocabulary. Completed and
// failed are terminal; pending may move to either.
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentFailed    EnrollmentStatus = "failed"
)

// Enrollment links a student to a course. Roster membership is a completed
// enrollment; paid enrollments carry the gateway transaction reference.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	TxRef      *string          `db:"tx_ref" json:"tx_ref,omitempty"`
	Amount     *float64         `db:"amount" json:"amount,omitempty"`
	Currency   *string          `db:"currency" json:"currency,omitempty"`
	PayerEmail *string          `db:"payer_email" json:"payer_email,omitempty"`
	PayerName  *string          `db:"payer_name" json:"payer_name,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the enrollment reached a final state.
func (e Enrollment) IsTerminal() bool {
	return e.Status == EnrollmentCompleted || e.Status == EnrollmentFailed
}
