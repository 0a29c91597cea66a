package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/export"
)

func f64(v float64) *float64 { return &v }

type mockTranscriptRepo struct {
	stored map[string]models.Transcript
	listed []models.TranscriptDetail
}

func (m *mockTranscriptRepo) Upsert(ctx context.Context, transcript *models.Transcript) error {
	if m.stored == nil {
		m.stored = make(map[string]models.Transcript)
	}
	m.stored[transcript.StudentID+"|"+transcript.CourseID] = *transcript
	return nil
}

func (m *mockTranscriptRepo) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Transcript, error) {
	transcript, ok := m.stored[studentID+"|"+courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &transcript, nil
}

func (m *mockTranscriptRepo) ListByStudent(ctx context.Context, studentID string) ([]models.TranscriptDetail, error) {
	return m.listed, nil
}

type mockPairings struct {
	assigned map[string]bool
}

func (m *mockPairings) IsInstructorAssigned(ctx context.Context, instructorID, courseID string) (bool, error) {
	return m.assigned[instructorID+"|"+courseID], nil
}

type mockEnrollments struct {
	enrolled map[string]bool
	roster   map[string][]string
}

func (m *mockEnrollments) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.enrolled[studentID+"|"+courseID], nil
}

func (m *mockEnrollments) ListEnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	return m.roster[courseID], nil
}

type mockUserLookup struct {
	users map[string]models.User
}

func (m *mockUserLookup) FindByIDAndRole(ctx context.Context, id string, role models.UserRole) (*models.User, error) {
	user, ok := m.users[id]
	if !ok || user.Role != role {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func TestCalculateFinalGrade(t *testing.T) {
	tests := []struct {
		name       string
		entries    []models.TranscriptEntry
		percentage float64
		letter     string
		points     float64
	}{
		{
			name:       "no weighted entries",
			entries:    []models.TranscriptEntry{{Name: "Quiz", Score: 8, MaxScore: 10}},
			percentage: 0,
			letter:     "N/A",
			points:     0,
		},
		{
			name: "single entry mid B",
			entries: []models.TranscriptEntry{
				{Name: "Final", Score: 85, MaxScore: 100, Weight: f64(1), Percentage: f64(85)},
			},
			percentage: 85,
			letter:     "B",
			points:     3.0,
		},
		{
			name: "weighted average crosses a band",
			entries: []models.TranscriptEntry{
				{Name: "Midterm", Score: 90, MaxScore: 100, Weight: f64(0.4), Percentage: f64(90)},
				{Name: "Final", Score: 95, MaxScore: 100, Weight: f64(0.6), Percentage: f64(95)},
			},
			percentage: 93,
			letter:     "A",
			points:     4.0,
		},
		{
			name: "unweighted entry ignored",
			entries: []models.TranscriptEntry{
				{Name: "Practice", Score: 10, MaxScore: 100},
				{Name: "Exam", Score: 72, MaxScore: 100, Weight: f64(1), Percentage: f64(72)},
			},
			percentage: 72,
			letter:     "C-",
			points:     1.7,
		},
		{
			name: "failing",
			entries: []models.TranscriptEntry{
				{Name: "Exam", Score: 40, MaxScore: 100, Weight: f64(1), Percentage: f64(40)},
			},
			percentage: 40,
			letter:     "F",
			points:     0,
		},
		{
			name: "top band",
			entries: []models.TranscriptEntry{
				{Name: "Exam", Score: 98, MaxScore: 100, Weight: f64(1), Percentage: f64(98)},
			},
			percentage: 98,
			letter:     "A+",
			points:     4.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			percentage, letter, points := CalculateFinalGrade(tc.entries)
			assert.InDelta(t, tc.percentage, percentage, 0.001)
			assert.Equal(t, tc.letter, letter)
			assert.InDelta(t, tc.points, points, 0.001)
		})
	}
}

func TestTranscriptUpsertComputesGrade(t *testing.T) {
	repo := &mockTranscriptRepo{}
	svc := NewTranscriptService(repo, &mockUserLookup{}, &mockPairings{assigned: map[string]bool{"t1|c1": true}}, &mockEnrollments{enrolled: map[string]bool{"s1|c1": true}}, export.NewPDFExporter(), nil, nil)

	transcript, err := svc.Upsert(context.Background(), "c1", "s1", "t1", models.UpsertTranscriptRequest{
		AcademicYear: "2025/2026",
		Semester:     "Fall",
		Credits:      3,
		Entries: []models.TranscriptEntry{
			{Name: "Final", Score: 85, MaxScore: 100, Weight: f64(1), Percentage: f64(85)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "B", transcript.FinalGrade)
	assert.InDelta(t, 3.0, transcript.GradePoints, 0.001)
	assert.Equal(t, "t1", transcript.LastUpdatedBy)

	stored, err := svc.Get(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.InDelta(t, 85, stored.FinalPercentage, 0.001)
}

func TestTranscriptUpsertRequiresPairing(t *testing.T) {
	svc := NewTranscriptService(&mockTranscriptRepo{}, &mockUserLookup{}, &mockPairings{}, &mockEnrollments{}, export.NewPDFExporter(), nil, nil)

	_, err := svc.Upsert(context.Background(), "c1", "s1", "intruder", models.UpsertTranscriptRequest{
		AcademicYear: "2025/2026",
		Semester:     "Fall",
		Credits:      3,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGPARollup(t *testing.T) {
	name := "Algebra"
	code := "MATH101"
	other := "Physics"
	repo := &mockTranscriptRepo{listed: []models.TranscriptDetail{
		{
			Transcript: models.Transcript{AcademicYear: "2025/2026", Semester: "Fall", Credits: 3, GradePoints: 4.0, FinalGrade: "A"},
			CourseName: &name, CourseCode: &code,
		},
		{
			Transcript: models.Transcript{AcademicYear: "2025/2026", Semester: "Fall", Credits: 4, GradePoints: 3.0, FinalGrade: "B"},
			CourseName: &other,
		},
		{
			Transcript: models.Transcript{AcademicYear: "2025/2026", Semester: "Spring", Credits: 2, GradePoints: 3.7, FinalGrade: "A-"},
			CourseName: &other,
		},
		// Orphaned transcript: course deleted, excluded from the rollup.
		{
			Transcript: models.Transcript{AcademicYear: "2025/2026", Semester: "Spring", Credits: 3, GradePoints: 1.0, FinalGrade: "D"},
		},
		// Ungraded transcript excluded as well.
		{
			Transcript: models.Transcript{AcademicYear: "2025/2026", Semester: "Spring", Credits: 3, FinalGrade: "N/A"},
			CourseName: &other,
		},
	}}
	svc := NewTranscriptService(repo, &mockUserLookup{}, &mockPairings{}, &mockEnrollments{}, export.NewPDFExporter(), nil, nil)

	transcripts, summary, err := svc.ListForStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, transcripts, 5)

	require.Len(t, summary.SemesterGPAs, 2)
	// Fall: (4.0*3 + 3.0*4) / 7 = 3.43
	assert.InDelta(t, 3.43, summary.SemesterGPAs[0].GPA, 0.001)
	// Spring: only the surviving graded course counts.
	assert.InDelta(t, 3.7, summary.SemesterGPAs[1].GPA, 0.001)
	// Cumulative: (4.0*3 + 3.0*4 + 3.7*2) / 9 = 3.49
	assert.InDelta(t, 3.49, summary.CumulativeGPA, 0.001)
	assert.InDelta(t, 9, summary.TotalCredits, 0.001)
}

func TestRenderPDFUnknownStudent(t *testing.T) {
	svc := NewTranscriptService(&mockTranscriptRepo{}, &mockUserLookup{}, &mockPairings{}, &mockEnrollments{}, export.NewPDFExporter(), nil, nil)

	_, _, err := svc.RenderPDF(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRenderPDFProducesDocument(t *testing.T) {
	name := "Algebra"
	repo := &mockTranscriptRepo{listed: []models.TranscriptDetail{
		{
			Transcript: models.Transcript{AcademicYear: "2025/2026", Semester: "Fall", Credits: 3, GradePoints: 3.0, FinalGrade: "B", FinalPercentage: 85},
			CourseName: &name,
		},
	}}
	users := &mockUserLookup{users: map[string]models.User{
		"s1": {ID: "s1", Username: "jdoe", FullName: "Jordan Doe", Role: models.RoleStudent},
	}}
	svc := NewTranscriptService(repo, users, &mockPairings{}, &mockEnrollments{}, export.NewPDFExporter(), nil, nil)

	payload, filename, err := svc.RenderPDF(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "transcript_jdoe.pdf", filename)
	assert.NotEmpty(t, payload)
}
