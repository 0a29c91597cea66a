package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/export"
	"github.com/noah-isme/campus-lms-api/pkg/storage"
)

type submissionRepository interface {
	Upsert(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.SubmissionDetail, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
	Grade(ctx context.Context, id string, grade float64, feedback *string, gradedBy string, gradedAt time.Time) error
}

type assignmentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// SubmissionService provides the submission and grading workflow.
type SubmissionService struct {
	submissions submissionRepository
	assignments assignmentLookup
	pairings    instructorPairingChecker
	enrollments enrollmentChecker
	store       materialStore
	csv         csvRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(submissions submissionRepository, assignments assignmentLookup, pairings instructorPairingChecker, enrollments enrollmentChecker, store materialStore, csv csvRenderer, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubmissionService{
		submissions: submissions,
		assignments: assignments,
		pairings:    pairings,
		enrollments: enrollments,
		store:       store,
		csv:         csv,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a student's work for an assignment. A resubmission before
// the deadline overwrites the previous one and clears any grade. Submissions
// after the deadline are rejected, as are submissions carrying neither files
// nor text.
func (s *SubmissionService) Submit(ctx context.Context, assignmentID, studentID string, req models.SubmitRequest, files []*multipart.FileHeader) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch assignment")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, studentID, assignment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
	}

	submittedAt := s.now()
	if assignment.IsPastDue(submittedAt) {
		return nil, appErrors.Clone(appErrors.ErrDueDatePassed, "")
	}

	text := strings.TrimSpace(req.TextSubmission)
	if len(files) == 0 && text == "" {
		return nil, appErrors.Clone(appErrors.ErrEmptySubmission, "")
	}

	var stored models.SubmissionFiles
	for _, header := range files {
		path, err := s.store.SaveUpload(storage.ScopeSubmissions, header)
		if err != nil {
			for _, f := range stored {
				if cleanupErr := s.store.Delete(f.StoredPath); cleanupErr != nil {
					s.logger.Warn("failed to remove partial submission file", zap.Error(cleanupErr))
				}
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission file")
		}
		stored = append(stored, models.SubmissionFile{
			Name:       header.Filename,
			StoredPath: path,
			Size:       header.Size,
			Mimetype:   header.Header.Get("Content-Type"),
		})
	}

	submission := &models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Files:        stored,
		SubmittedAt:  submittedAt,
	}
	if text != "" {
		submission.TextSubmission = &text
	}

	previous, err := s.submissions.FindByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch previous submission")
	}

	if err := s.submissions.Upsert(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
	}

	// Stored files of the replaced submission are no longer referenced.
	if previous != nil {
		for _, f := range previous.Files {
			if err := s.store.Delete(f.StoredPath); err != nil {
				s.logger.Warn("failed to remove replaced submission file", zap.Error(err))
			}
		}
	}

	return submission, nil
}

// ListForAssignment returns every submission of an assignment for its
// instructor.
func (s *SubmissionService) ListForAssignment(ctx context.Context, assignmentID, instructorID string) ([]models.SubmissionDetail, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch assignment")
	}
	if err := s.requirePairing(ctx, instructorID, assignment.CourseID); err != nil {
		return nil, err
	}
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Grade records a grade and optional feedback on a submission. Only the
// instructor paired with the submission's course may grade, and the grade
// must not exceed the assignment's total points.
func (s *SubmissionService) Grade(ctx context.Context, submissionID, instructorID string, req models.GradeRequest) (*models.SubmissionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload")
	}

	detail, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch submission")
	}

	if err := s.requirePairing(ctx, instructorID, detail.CourseID); err != nil {
		return nil, err
	}

	if req.Grade < 0 || req.Grade > detail.TotalPoints {
		return nil, appErrors.Clone(appErrors.ErrGradeOutOfRange,
			fmt.Sprintf("grade must be between 0 and %g", detail.TotalPoints))
	}

	gradedAt := s.now()
	if err := s.submissions.Grade(ctx, submissionID, req.Grade, req.Feedback, instructorID, gradedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	detail.Grade = &req.Grade
	detail.Feedback = req.Feedback
	detail.GradedBy = &instructorID
	detail.GradedAt = &gradedAt
	return detail, nil
}

// OpenFile streams one stored submission file for an authorized caller: the
// submitting student, the instructor paired with the course, or staff.
func (s *SubmissionService) OpenFile(ctx context.Context, submissionID, storedPath string, caller *models.User) (*os.File, *models.SubmissionFile, error) {
	detail, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch submission")
	}

	switch caller.Role {
	case models.RoleStudent:
		if detail.StudentID != caller.ID {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not your submission")
		}
	case models.RoleTeacher:
		if err := s.requirePairing(ctx, caller.ID, detail.CourseID); err != nil {
			return nil, nil, err
		}
	case models.RoleAdmin, models.RoleManager:
		// full read access
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}

	var target *models.SubmissionFile
	for i := range detail.Files {
		if detail.Files[i].StoredPath == storedPath {
			target = &detail.Files[i]
			break
		}
	}
	if target == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "file not part of this submission")
	}

	file, err := s.store.Open(target.StoredPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "submission file missing from storage")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open submission file")
	}
	return file, target, nil
}

// GradebookCSV renders the gradebook of an assignment as CSV for its
// instructor.
func (s *SubmissionService) GradebookCSV(ctx context.Context, assignmentID, instructorID string) ([]byte, string, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch assignment")
	}
	if err := s.requirePairing(ctx, instructorID, assignment.CourseID); err != nil {
		return nil, "", err
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}

	dataset := export.Dataset{
		Headers: []string{"student", "submitted_at", "files", "grade", "feedback"},
	}
	for _, submission := range submissions {
		row := map[string]string{
			"student":      submission.StudentName,
			"submitted_at": submission.SubmittedAt.Format(time.RFC3339),
			"files":        fmt.Sprintf("%d", len(submission.Files)),
			"grade":        "",
			"feedback":     "",
		}
		if submission.Grade != nil {
			row["grade"] = fmt.Sprintf("%g", *submission.Grade)
		}
		if submission.Feedback != nil {
			row["feedback"] = *submission.Feedback
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gradebook")
	}

	filename := fmt.Sprintf("gradebook_%s.csv", strings.ReplaceAll(strings.ToLower(assignment.Title), " ", "_"))
	return payload, filename, nil
}

func (s *SubmissionService) requirePairing(ctx context.Context, instructorID, courseID string) error {
	assigned, err := s.pairings.IsInstructorAssigned(ctx, instructorID, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor assignment")
	}
	if !assigned {
		return appErrors.Clone(appErrors.ErrForbidden, "not the instructor of this course")
	}
	return nil
}
