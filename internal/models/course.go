package models

import "time"

// CourseStatus enumerates the course lifecycle.
type CourseStatus string

const (
	CourseStatusDraft    CourseStatus = "draft"
	CourseStatusActive   CourseStatus = "active"
	CourseStatusArchived CourseStatus = "archived"
)

// CourseDuration enumerates supported course lengths.
type CourseDuration string

const (
	Duration4Weeks  CourseDuration = "4_weeks"
	Duration8Weeks  CourseDuration = "8_weeks"
	Duration12Weeks CourseDuration = "12_weeks"
	Duration16Weeks CourseDuration = "16_weeks"
)

// Course represents a course offering. The code is globally unique.
// EnrolledCount is maintained in the same transaction as enrollment writes.
type Course struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Code          string         `db:"code" json:"code"`
	Description   string         `db:"description" json:"description"`
	Duration      CourseDuration `db:"duration" json:"duration"`
	Price         float64        `db:"price" json:"price"`
	Status        CourseStatus   `db:"status" json:"status"`
	ThumbnailPath *string        `db:"thumbnail_path" json:"thumbnail_path,omitempty"`
	EnrolledCount int            `db:"enrolled_count" json:"enrolled_count"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// CreateCourseRequest carries the payload for creating a course.
type CreateCourseRequest struct {
	Name        string  `json:"name" validate:"required,min=3,max=200"`
	Code        string  `json:"code" validate:"required,min=2,max=32"`
	Description string  `json:"description" validate:"max=5000"`
	Duration    string  `json:"duration" validate:"required,oneof=4_weeks 8_weeks 12_weeks 16_weeks"`
	Price       float64 `json:"price" validate:"gte=0"`
	Status      string  `json:"status" validate:"omitempty,oneof=draft active archived"`
}

// UpdateCourseRequest carries the payload for updating a course. The code is
// immutable once created.
type UpdateCourseRequest struct {
	Name        string  `json:"name" validate:"required,min=3,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Duration    string  `json:"duration" validate:"required,oneof=4_weeks 8_weeks 12_weeks 16_weeks"`
	Price       float64 `json:"price" validate:"gte=0"`
	Status      string  `json:"status" validate:"required,oneof=draft active archived"`
}

// AssignInstructorRequest pairs a course with an instructor.
type AssignInstructorRequest struct {
	InstructorID string `json:"instructor_id" validate:"required,uuid4"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	Status   *CourseStatus
	Search   string
	Page     int
	PageSize int
}

// CourseDetail enriches a course with its assigned instructor, if any.
type CourseDetail struct {
	Course
	InstructorID   *string `db:"instructor_id" json:"instructor_id,omitempty"`
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
}
