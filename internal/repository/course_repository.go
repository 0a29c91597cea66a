package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-lms-api/internal/models"
)

// CourseRepository persists courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, code, description, duration, price, status, thumbnail_path, enrolled_count, created_at, updated_at)
		VALUES (:id, :name, :code, :description, :duration, :price, :status, :thumbnail_path, :enrolled_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID fetches a course by ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT * FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// CodeExists reports whether the globally unique code is already taken.
func (r *CourseRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT COUNT(*) FROM courses WHERE code = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, code); err != nil {
		return false, fmt.Errorf("check course code: %w", err)
	}
	return count > 0, nil
}

// List returns courses matching the filter together with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	conditions := []string{"1=1"}
	args := map[string]interface{}{}
	if filter.Status != nil {
		conditions = append(conditions, "c.status = :status")
		args["status"] = *filter.Status
	}
	if filter.Search != "" {
		conditions = append(conditions, "(c.name ILIKE :search OR c.code ILIKE :search)")
		args["search"] = "%" + filter.Search + "%"
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	args["limit"] = pageSize
	args["offset"] = (page - 1) * pageSize

	countQuery := `SELECT COUNT(*) FROM courses c WHERE ` + where
	rows, err := r.db.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	var total int
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan course count: %w", err)
		}
	}
	rows.Close()

	listQuery := `
SELECT c.*, ca.instructor_id, u.full_name AS instructor_name
FROM courses c
LEFT JOIN course_assignments ca ON ca.course_id = c.id
LEFT JOIN users u ON u.id = ca.instructor_id
WHERE ` + where + `
ORDER BY c.created_at DESC
LIMIT :limit OFFSET :offset`
	listRows, err := r.db.NamedQueryContext(ctx, listQuery, args)
	if err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	defer listRows.Close() //nolint:errcheck

	var courses []models.CourseDetail
	for listRows.Next() {
		var course models.CourseDetail
		if err := listRows.StructScan(&course); err != nil {
			return nil, 0, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, course)
	}
	return courses, total, nil
}

// ListAvailableForStudent returns active courses the student is not enrolled in.
// Pending enrollments also exclude the course so a checkout in flight is not
// offered twice.
func (r *CourseRepository) ListAvailableForStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	const query = `
SELECT c.*, ca.instructor_id, u.full_name AS instructor_name
FROM courses c
LEFT JOIN course_assignments ca ON ca.course_id = c.id
LEFT JOIN users u ON u.id = ca.instructor_id
WHERE c.status = 'active'
  AND NOT EXISTS (
    SELECT 1 FROM enrollments e
    WHERE e.course_id = c.id AND e.student_id = $1 AND e.status IN ('pending', 'completed')
  )
ORDER BY c.name ASC`
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list available courses: %w", err)
	}
	return courses, nil
}

// Update rewrites the mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses
		SET name = :name, description = :description, duration = :duration, price = :price,
		    status = :status, thumbnail_path = :thumbnail_path, updated_at = :updated_at
		WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated course rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted course rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
