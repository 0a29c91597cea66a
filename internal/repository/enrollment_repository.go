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

// EnrollmentRepository persists enrollments. Writes that must keep the course
// roster counter in step with enrollment rows run inside one transaction.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByStudentAndCourse fetches the enrollment for the pair, if any.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT * FROM enrollments WHERE student_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByTxRef fetches the enrollment created for a checkout reference.
func (r *EnrollmentRepository) FindByTxRef(ctx context.Context, txRef string) (*models.Enrollment, error) {
	const query = `SELECT * FROM enrollments WHERE tx_ref = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, txRef); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CreateCompleted inserts a completed enrollment and bumps the course roster
// counter in one transaction.
func (r *EnrollmentRepository) CreateCompleted(ctx context.Context, enrollment *models.Enrollment) error {
	prepare(enrollment)
	enrollment.Status = models.EnrollmentCompleted

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertEnrollment(ctx, tx, enrollment); err != nil {
		return err
	}
	if err := bumpRoster(ctx, tx, enrollment.CourseID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// CreatePending inserts a pending enrollment carrying the checkout reference.
// The roster counter is untouched until payment completes.
func (r *EnrollmentRepository) CreatePending(ctx context.Context, enrollment *models.Enrollment) error {
	prepare(enrollment)
	enrollment.Status = models.EnrollmentPending
	if err := insertEnrollment(ctx, r.db, enrollment); err != nil {
		return err
	}
	return nil
}

// Delete removes an enrollment row. Used to roll back a pending enrollment
// when the gateway call fails.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted enrollment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Complete flips a pending enrollment to completed and bumps the roster
// counter in one transaction.
func (r *EnrollmentRepository) Complete(ctx context.Context, id, courseID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin completion tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'`
	result, err := tx.ExecContext(ctx, query, id, models.EnrollmentCompleted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check completed enrollment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	if err := bumpRoster(ctx, tx, courseID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit completion tx: %w", err)
	}
	return nil
}

// MarkFailed flips a pending enrollment to failed.
func (r *EnrollmentRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentFailed, time.Now().UTC()); err != nil {
		return fmt.Errorf("fail enrollment: %w", err)
	}
	return nil
}

// ListEnrolledStudentIDs returns the roster (completed enrollments) of a course.
func (r *EnrollmentRepository) ListEnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT student_id FROM enrollments WHERE course_id = $1 AND status = 'completed'`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return ids, nil
}

// IsEnrolled reports whether the student holds a completed enrollment.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = 'completed' LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

func prepare(enrollment *models.Enrollment) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
}

func insertEnrollment(ctx context.Context, ext sqlx.ExtContext, enrollment *models.Enrollment) error {
	const query = `INSERT INTO enrollments (id, student_id, course_id, status, tx_ref, amount, currency, payer_email, payer_name, created_at, updated_at)
		VALUES (:id, :student_id, :course_id, :status, :tx_ref, :amount, :currency, :payer_email, :payer_name, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func bumpRoster(ctx context.Context, ext sqlx.ExtContext, courseID string) error {
	const query = `UPDATE courses SET enrolled_count = enrolled_count + 1, updated_at = $2 WHERE id = $1`
	if _, err := ext.ExecContext(ctx, query, courseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("bump course roster: %w", err)
	}
	return nil
}
