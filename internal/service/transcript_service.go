package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/export"
)

type transcriptRepository interface {
	Upsert(ctx context.Context, transcript *models.Transcript) error
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Transcript, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.TranscriptDetail, error)
}

type transcriptUserRepository interface {
	FindByIDAndRole(ctx context.Context, id string, role models.UserRole) (*models.User, error)
}

type transcriptPDFRenderer interface {
	RenderTranscript(doc export.TranscriptDocument) ([]byte, error)
}

// TranscriptService computes, stores and exports transcripts.
type TranscriptService struct {
	transcripts transcriptRepository
	users       transcriptUserRepository
	pairings    instructorPairingChecker
	enrollments enrollmentChecker
	pdf         transcriptPDFRenderer
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewTranscriptService constructs a TranscriptService.
func NewTranscriptService(transcripts transcriptRepository, users transcriptUserRepository, pairings instructorPairingChecker, enrollments enrollmentChecker, pdf transcriptPDFRenderer, validate *validator.Validate, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TranscriptService{
		transcripts: transcripts,
		users:       users,
		pairings:    pairings,
		enrollments: enrollments,
		pdf:         pdf,
		validator:   validate,
		logger:      logger,
	}
}

// gradeBand maps the lower bound of a percentage band to its letter and
// grade points. Bands are checked in descending order.
type gradeBand struct {
	floor  float64
	letter string
	points float64
}

var gradeBands = []gradeBand{
	{97, "A+", 4.0},
	{93, "A", 4.0},
	{90, "A-", 3.7},
	{87, "B+", 3.3},
	{83, "B", 3.0},
	{80, "B-", 2.7},
	{77, "C+", 2.3},
	{73, "C", 2.0},
	{70, "C-", 1.7},
	{67, "D+", 1.3},
	{63, "D", 1.0},
	{60, "D-", 0.7},
}

// CalculateFinalGrade computes the weighted percentage, letter grade and
// grade points from transcript entries. Entries without both a weight and a
// percentage are ignored; when no entry carries weight the result is the
// N/A triple.
func CalculateFinalGrade(entries []models.TranscriptEntry) (float64, string, float64) {
	var weighted, totalWeight float64
	for _, entry := range entries {
		if entry.Weight == nil || entry.Percentage == nil {
			continue
		}
		weighted += *entry.Percentage * *entry.Weight
		totalWeight += *entry.Weight
	}
	if totalWeight == 0 {
		return 0, "N/A", 0
	}

	percentage := math.Round(weighted/totalWeight*100) / 100
	for _, band := range gradeBands {
		if percentage >= band.floor {
			return percentage, band.letter, band.points
		}
	}
	return percentage, "F", 0
}

// Upsert recomputes and stores the transcript of one student in one course.
// Only the instructor paired with the course may write it, and the student
// must hold a completed enrollment.
func (s *TranscriptService) Upsert(ctx context.Context, courseID, studentID, instructorID string, req models.UpsertTranscriptRequest) (*models.Transcript, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transcript payload")
	}

	assigned, err := s.pairings.IsInstructorAssigned(ctx, instructorID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor assignment")
	}
	if !assigned {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the instructor of this course")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course")
	}

	percentage, letter, points := CalculateFinalGrade(req.Entries)

	transcript := &models.Transcript{
		StudentID:       studentID,
		CourseID:        courseID,
		AcademicYear:    req.AcademicYear,
		Semester:        req.Semester,
		Credits:         req.Credits,
		Entries:         req.Entries,
		FinalPercentage: percentage,
		FinalGrade:      letter,
		GradePoints:     points,
		Remarks:         req.Remarks,
		LastUpdatedBy:   instructorID,
	}

	if err := s.transcripts.Upsert(ctx, transcript); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store transcript")
	}
	return transcript, nil
}

// Get fetches one student-course transcript.
func (s *TranscriptService) Get(ctx context.Context, studentID, courseID string) (*models.Transcript, error) {
	transcript, err := s.transcripts.FindByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transcript not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch transcript")
	}
	return transcript, nil
}

// ListForStudent returns the student's transcripts together with the GPA
// rollup. Transcripts whose course no longer exists are listed but excluded
// from the rollup.
func (s *TranscriptService) ListForStudent(ctx context.Context, studentID string) ([]models.TranscriptDetail, *models.GPASummary, error) {
	transcripts, err := s.transcripts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transcripts")
	}
	return transcripts, summarizeGPA(transcripts), nil
}

type gpaBucket struct {
	year, semester  string
	points, credits float64
}

func summarizeGPA(transcripts []models.TranscriptDetail) *models.GPASummary {
	var buckets []gpaBucket
	index := map[string]int{}
	var totalPoints, totalCredits float64

	for _, t := range transcripts {
		if t.CourseName == nil {
			continue
		}
		if t.FinalGrade == "N/A" || t.Credits <= 0 {
			continue
		}
		key := t.AcademicYear + "|" + t.Semester
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, gpaBucket{year: t.AcademicYear, semester: t.Semester})
		}
		buckets[i].points += t.GradePoints * t.Credits
		buckets[i].credits += t.Credits
		totalPoints += t.GradePoints * t.Credits
		totalCredits += t.Credits
	}

	summary := &models.GPASummary{TotalCredits: totalCredits}
	for _, b := range buckets {
		summary.SemesterGPAs = append(summary.SemesterGPAs, models.SemesterGPA{
			AcademicYear: b.year,
			Semester:     b.semester,
			GPA:          round2(b.points / b.credits),
			Credits:      b.credits,
		})
	}
	if totalCredits > 0 {
		summary.CumulativeGPA = round2(totalPoints / totalCredits)
	}
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RenderPDF produces the printable transcript for a student.
func (s *TranscriptService) RenderPDF(ctx context.Context, studentID string) ([]byte, string, error) {
	student, err := s.users.FindByIDAndRole(ctx, studentID, models.RoleStudent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	transcripts, summary, err := s.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, "", err
	}

	doc := export.TranscriptDocument{
		StudentName:   student.FullName,
		StudentID:     student.ID,
		GeneratedAt:   time.Now().UTC().Format("2006-01-02 15:04 MST"),
		CumulativeGPA: summary.CumulativeGPA,
	}
	for _, t := range transcripts {
		if t.CourseName == nil {
			continue
		}
		block := export.TranscriptCourseBlock{
			CourseName:      *t.CourseName,
			AcademicYear:    t.AcademicYear,
			Semester:        t.Semester,
			FinalGrade:      t.FinalGrade,
			FinalPercentage: t.FinalPercentage,
			GradePoints:     t.GradePoints,
		}
		if t.CourseCode != nil {
			block.CourseCode = *t.CourseCode
		}
		for _, entry := range t.Entries {
			line := export.TranscriptEntryLine{
				Name:     entry.Name,
				Score:    entry.Score,
				MaxScore: entry.MaxScore,
			}
			if entry.Weight != nil {
				line.Weight = *entry.Weight
			}
			if entry.Percentage != nil {
				line.Percentage = *entry.Percentage
			}
			block.Entries = append(block.Entries, line)
		}
		doc.CourseBlocks = append(doc.CourseBlocks, block)
	}
	for _, semester := range summary.SemesterGPAs {
		doc.SemesterGPAs = append(doc.SemesterGPAs, export.TranscriptGPALine{
			AcademicYear: semester.AcademicYear,
			Semester:     semester.Semester,
			GPA:          semester.GPA,
		})
	}

	payload, err := s.pdf.RenderTranscript(doc)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}
	filename := fmt.Sprintf("transcript_%s.pdf", student.Username)
	return payload, filename, nil
}
