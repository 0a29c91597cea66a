package models

import "time"

// CourseAssignment links one instructor to a course. A course has at most one
// active instructor pairing at a time; reassignment updates the row.
type CourseAssignment struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseAssignmentDetail enriches the pairing with display names.
type CourseAssignmentDetail struct {
	CourseAssignment
	CourseName     string `db:"course_name" json:"course_name"`
	CourseCode     string `db:"course_code" json:"course_code"`
	InstructorName string `db:"instructor_name" json:"instructor_name"`
}
