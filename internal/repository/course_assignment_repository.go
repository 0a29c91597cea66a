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

// CourseAssignmentRepository persists instructor-course pairings.
type CourseAssignmentRepository struct {
	db *sqlx.DB
}

// NewCourseAssignmentRepository constructs the repository.
func NewCourseAssignmentRepository(db *sqlx.DB) *CourseAssignmentRepository {
	return &CourseAssignmentRepository{db: db}
}

// FindByCourse returns the pairing for the course, if any.
func (r *CourseAssignmentRepository) FindByCourse(ctx context.Context, courseID string) (*models.CourseAssignment, error) {
	const query = `SELECT * FROM course_assignments WHERE course_id = $1`
	var assignment models.CourseAssignment
	if err := r.db.GetContext(ctx, &assignment, query, courseID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Create inserts a new pairing. The course_id unique constraint guarantees at
// most one instructor per course at a time.
func (r *CourseAssignmentRepository) Create(ctx context.Context, assignment *models.CourseAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO course_assignments (id, course_id, instructor_id, created_at, updated_at)
		VALUES (:id, :course_id, :instructor_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create course assignment: %w", err)
	}
	return nil
}

// UpdateInstructor reassigns the course to a different instructor.
func (r *CourseAssignmentRepository) UpdateInstructor(ctx context.Context, courseID, instructorID string) error {
	const query = `UPDATE course_assignments SET instructor_id = $2, updated_at = $3 WHERE course_id = $1`
	result, err := r.db.ExecContext(ctx, query, courseID, instructorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reassign instructor: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reassigned rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsInstructorAssigned reports whether the instructor holds the pairing for
// the course. Grading, authoring and notification authorization all gate on
// this.
func (r *CourseAssignmentRepository) IsInstructorAssigned(ctx context.Context, instructorID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM course_assignments WHERE course_id = $1 AND instructor_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, instructorID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check instructor assignment: %w", err)
	}
	return true, nil
}

// ListByInstructor returns the courses an instructor is assigned to.
func (r *CourseAssignmentRepository) ListByInstructor(ctx context.Context, instructorID string) ([]models.CourseAssignmentDetail, error) {
	const query = `
SELECT ca.id, ca.course_id, ca.instructor_id, ca.created_at, ca.updated_at,
       c.name AS course_name, c.code AS course_code, u.full_name AS instructor_name
FROM course_assignments ca
JOIN courses c ON c.id = ca.course_id
JOIN users u ON u.id = ca.instructor_id
WHERE ca.instructor_id = $1
ORDER BY c.name ASC`
	var assignments []models.CourseAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, instructorID); err != nil {
		return nil, fmt.Errorf("list instructor assignments: %w", err)
	}
	return assignments, nil
}
