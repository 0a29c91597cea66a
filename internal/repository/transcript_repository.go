package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

// TranscriptRepository persists per-(student, course) transcripts.
type TranscriptRepository struct {
	db *sqlx.DB
}

// NewTranscriptRepository constructs the repository.
func NewTranscriptRepository(db *sqlx.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Upsert writes the transcript for the (student, course) pair, replacing any
// previous computation.
func (r *TranscriptRepository) Upsert(ctx context.Context, transcript *models.Transcript) error {
	if transcript.ID == "" {
		transcript.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = now
	}
	transcript.UpdatedAt = now
	const query = `INSERT INTO transcripts (id, student_id, course_id, academic_year, semester, credits, entries,
		final_percentage, final_grade, grade_points, remarks, last_updated_by, created_at, updated_at)
		VALUES (:id, :student_id, :course_id, :academic_year, :semester, :credits, :entries,
		:final_percentage, :final_grade, :grade_points, :remarks, :last_updated_by, :created_at, :updated_at)
		ON CONFLICT (student_id, course_id) DO UPDATE
		SET academic_year = EXCLUDED.academic_year,
		    semester = EXCLUDED.semester,
		    credits = EXCLUDED.credits,
		    entries = EXCLUDED.entries,
		    final_percentage = EXCLUDED.final_percentage,
		    final_grade = EXCLUDED.final_grade,
		    grade_points = EXCLUDED.grade_points,
		    remarks = EXCLUDED.remarks,
		    last_updated_by = EXCLUDED.last_updated_by,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, transcript); err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

// FindByStudentAndCourse fetches one transcript.
func (r *TranscriptRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Transcript, error) {
	const query = `SELECT * FROM transcripts WHERE student_id = $1 AND course_id = $2`
	var transcript models.Transcript
	if err := r.db.GetContext(ctx, &transcript, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &transcript, nil
}

// ListByStudent returns all transcripts for a student with course context.
// The course join is LEFT so transcripts for deleted courses still surface;
// the GPA rollup skips them.
func (r *TranscriptRepository) ListByStudent(ctx context.Context, studentID string) ([]models.TranscriptDetail, error) {
	const query = `
SELECT t.*, c.name AS course_name, c.code AS course_code
FROM transcripts t
LEFT JOIN courses c ON c.id = t.course_id
WHERE t.student_id = $1
ORDER BY t.academic_year ASC, t.semester ASC`
	var transcripts []models.TranscriptDetail
	if err := r.db.SelectContext(ctx, &transcripts, query, studentID); err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	return transcripts, nil
}
