package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSubmissionRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec("INSERT INTO submissions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	text := "my answer"
	err := repo.Upsert(context.Background(), &models.Submission{
		AssignmentID:   "assignment-1",
		StudentID:      "student-1",
		Files:          models.SubmissionFiles{{Name: "essay.pdf", StoredPath: "submissions/abc.pdf", Size: 1024, Mimetype: "application/pdf"}},
		TextSubmission: &text,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "assignment_id", "student_id", "files", "text_submission", "submitted_at",
		"grade", "feedback", "graded_at", "graded_by",
		"course_id", "assignment_title", "total_points", "student_name",
	}).AddRow("sub-1", "assignment-1", "student-1", []byte(`[]`), nil, now, nil, nil, nil, nil, "course-1", "Essay", 100.0, "Student One")

	mock.ExpectQuery("SELECT s\\..*FROM submissions s").
		WithArgs("sub-1").
		WillReturnRows(rows)

	detail, err := repo.FindByID(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "course-1", detail.CourseID)
	assert.Equal(t, 100.0, detail.TotalPoints)
	assert.False(t, detail.IsGraded())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	feedback := "good work"
	gradedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET grade = $2, feedback = $3, graded_by = $4, graded_at = $5 WHERE id = $1")).
		WithArgs("sub-1", 88.0, &feedback, "teacher-1", gradedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Grade(context.Background(), "sub-1", 88.0, &feedback, "teacher-1", gradedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryMapByCourseAndStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "files", "text_submission", "submitted_at", "grade", "feedback", "graded_at", "graded_by"}).
		AddRow("sub-1", "assignment-1", "student-1", []byte(`[{"name":"a.pdf","stored_path":"submissions/a.pdf","size":1,"mimetype":"application/pdf"}]`), nil, now, nil, nil, nil, nil).
		AddRow("sub-2", "assignment-2", "student-1", []byte(`[]`), nil, now, 90.0, "ok", now, "teacher-1")

	mock.ExpectQuery("SELECT s\\.\\* FROM submissions s").
		WithArgs("course-1", "student-1").
		WillReturnRows(rows)

	result, err := repo.MapByCourseAndStudent(context.Background(), "course-1", "student-1")
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Len(t, result["assignment-1"].Files, 1)
	assert.True(t, result["assignment-2"].IsGraded())
	assert.NoError(t, mock.ExpectationsWereMet())
}
