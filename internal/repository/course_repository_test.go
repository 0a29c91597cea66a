package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

func TestCourseRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").
		WillReturnResult(sqlmock.NewResult(1, 1))

	course := &models.Course{
		Name:     "Intro to Go",
		Code:     "GO101",
		Duration: models.Duration8Weeks,
		Price:    500,
		Status:   models.CourseStatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), course))
	assert.NotEmpty(t, course.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCodeExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE code = $1")).
		WithArgs("GO101").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.CodeExists(context.Background(), "GO101")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListAvailableForStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "code", "description", "duration", "price", "status",
		"thumbnail_path", "enrolled_count", "created_at", "updated_at",
		"instructor_id", "instructor_name",
	}).AddRow("course-1", "Intro to Go", "GO101", "", "8_weeks", 500.0, "active", nil, 3, now, now, "teacher-1", "Teacher One")

	mock.ExpectQuery("SELECT c\\..*FROM courses c").
		WithArgs("student-1").
		WillReturnRows(rows)

	courses, err := repo.ListAvailableForStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "GO101", courses[0].Code)
	require.NotNil(t, courses[0].InstructorName)
	assert.Equal(t, "Teacher One", *courses[0].InstructorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
