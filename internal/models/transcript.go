package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TranscriptEntry is one graded assignment line on a transcript. Entries
// missing a percentage or weight are excluded from the weighted average.
type TranscriptEntry struct {
	Name       string   `json:"name"`
	Score      float64  `json:"score"`
	MaxScore   float64  `json:"max_score"`
	Weight     *float64 `json:"weight,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// TranscriptEntries is stored as a JSONB column.
type TranscriptEntries []TranscriptEntry

// Value implements driver.Valuer.
func (e TranscriptEntries) Value() (driver.Value, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e)
}

// Scan implements sql.Scanner.
func (e *TranscriptEntries) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	default:
		return fmt.Errorf("unsupported transcript entries type %T", src)
	}
}

// Transcript is the per-student-per-course computed grade record. It is fully
// recomputed from the supplied entries on every update.
type Transcript struct {
	ID              string            `db:"id" json:"id"`
	StudentID       string            `db:"student_id" json:"student_id"`
	CourseID        string            `db:"course_id" json:"course_id"`
	AcademicYear    string            `db:"academic_year" json:"academic_year"`
	Semester        string            `db:"semester" json:"semester"`
	Credits         float64           `db:"credits" json:"credits"`
	Entries         TranscriptEntries `db:"entries" json:"entries"`
	FinalPercentage float64           `db:"final_percentage" json:"final_percentage"`
	FinalGrade      string            `db:"final_grade" json:"final_grade"`
	GradePoints     float64           `db:"grade_points" json:"grade_points"`
	Remarks         *string           `db:"remarks" json:"remarks,omitempty"`
	LastUpdatedBy   string            `db:"last_updated_by" json:"last_updated_by"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// UpsertTranscriptRequest carries the full recomputation payload for one
// student-course transcript.
type UpsertTranscriptRequest struct {
	AcademicYear string            `json:"academic_year" validate:"required,max=16"`
	Semester     string            `json:"semester" validate:"required,max=32"`
	Credits      float64           `json:"credits" validate:"required,gt=0"`
	Entries      []TranscriptEntry `json:"entries"`
	Remarks      *string           `json:"remarks,omitempty" validate:"omitempty,max=2000"`
}

// TranscriptDetail joins the transcript with course display fields. Rows whose
// course no longer exists are skipped by the GPA rollup.
type TranscriptDetail struct {
	Transcript
	CourseName *string `db:"course_name" json:"course_name,omitempty"`
	CourseCode *string `db:"course_code" json:"course_code,omitempty"`
}

// SemesterGPA is one (academic year, semester) GPA bucket.
type SemesterGPA struct {
	AcademicYear string  `json:"academic_year"`
	Semester     string  `json:"semester"`
	GPA          float64 `json:"gpa"`
	Credits      float64 `json:"credits"`
}

// GPASummary is the student-level rollup across transcripts.
type GPASummary struct {
	SemesterGPAs  []SemesterGPA `json:"semester_gpas"`
	CumulativeGPA float64       `json:"cumulative_gpa"`
	TotalCredits  float64       `json:"total_credits"`
}
