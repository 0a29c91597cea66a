package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

// SubmissionRepository persists student submissions. The storage layer
// enforces one submission per (assignment, student); every write goes through
// the upsert so resubmission overwrites in place.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Upsert creates or overwrites the student's submission for the assignment.
// Grading fields are always cleared: a resubmission returns the pair to the
// ungraded state.
func (r *SubmissionRepository) Upsert(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, files, text_submission, submitted_at, grade, feedback, graded_at, graded_by)
		VALUES (:id, :assignment_id, :student_id, :files, :text_submission, :submitted_at, NULL, NULL, NULL, NULL)
		ON CONFLICT (assignment_id, student_id) DO UPDATE
		SET files = EXCLUDED.files,
		    text_submission = EXCLUDED.text_submission,
		    submitted_at = EXCLUDED.submitted_at,
		    grade = NULL,
		    feedback = NULL,
		    graded_at = NULL,
		    graded_by = NULL`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// FindByID fetches a submission joined with its assignment and student.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.SubmissionDetail, error) {
	const query = `
SELECT s.*, a.course_id, a.title AS assignment_title, a.total_points, u.full_name AS student_name
FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
JOIN users u ON u.id = s.student_id
WHERE s.id = $1`
	var detail models.SubmissionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByAssignmentAndStudent fetches the student's submission for an assignment.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT * FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListByAssignment returns all submissions for an assignment with student names.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	const query = `
SELECT s.*, a.course_id, a.title AS assignment_title, a.total_points, u.full_name AS student_name
FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
JOIN users u ON u.id = s.student_id
WHERE s.assignment_id = $1
ORDER BY u.full_name ASC`
	var details []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &details, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return details, nil
}

// MapByCourseAndStudent returns the student's submissions for every assignment
// in a course, keyed by assignment ID.
func (r *SubmissionRepository) MapByCourseAndStudent(ctx context.Context, courseID, studentID string) (map[string]models.Submission, error) {
	const query = `
SELECT s.* FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE a.course_id = $1 AND s.student_id = $2`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, courseID, studentID); err != nil {
		return nil, fmt.Errorf("map submissions: %w", err)
	}
	result := make(map[string]models.Submission, len(submissions))
	for _, s := range submissions {
		result[s.AssignmentID] = s
	}
	return result, nil
}

// Grade records the grading fields for a submission.
func (r *SubmissionRepository) Grade(ctx context.Context, id string, grade float64, feedback *string, gradedBy string, gradedAt time.Time) error {
	const query = `UPDATE submissions SET grade = $2, feedback = $3, graded_by = $4, graded_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, feedback, gradedBy, gradedAt); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}
