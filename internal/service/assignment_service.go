package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"net/url"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/storage"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	Delete(ctx context.Context, id string) error
}

type instructorPairingChecker interface {
	IsInstructorAssigned(ctx context.Context, instructorID, courseID string) (bool, error)
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

type submissionLookup interface {
	MapByCourseAndStudent(ctx context.Context, courseID, studentID string) (map[string]models.Submission, error)
}

type materialStore interface {
	SaveUpload(scope string, header *multipart.FileHeader) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
}

// AssignmentService provides assignment authoring and listing use cases.
type AssignmentService struct {
	assignments assignmentRepository
	pairings    instructorPairingChecker
	enrollments enrollmentChecker
	submissions submissionLookup
	store       materialStore
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(assignments assignmentRepository, pairings instructorPairingChecker, enrollments enrollmentChecker, submissions submissionLookup, store materialStore, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{
		assignments: assignments,
		pairings:    pairings,
		enrollments: enrollments,
		submissions: submissions,
		store:       store,
		validator:   validate,
		logger:      logger,
	}
}

// Create authors an assignment in a course. Only the instructor paired with
// the course may author.
func (s *AssignmentService) Create(ctx context.Context, courseID, instructorID string, req models.CreateAssignmentRequest, attachment *multipart.FileHeader) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	if err := s.requirePairing(ctx, instructorID, courseID); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		CourseID:    courseID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate.UTC(),
		TotalPoints: req.TotalPoints,
		CreatedBy:   instructorID,
	}

	if attachment != nil {
		path, err := s.store.SaveUpload(storage.ScopeMaterials, attachment)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
		}
		name := attachment.Filename
		size := attachment.Size
		mimetype := attachment.Header.Get("Content-Type")
		assignment.AttachmentPath = &path
		assignment.AttachmentName = &name
		assignment.AttachmentSize = &size
		assignment.AttachmentMimetype = &mimetype
	}

	if err := s.assignments.Create(ctx, assignment); err != nil {
		if assignment.AttachmentPath != nil {
			if cleanupErr := s.store.Delete(*assignment.AttachmentPath); cleanupErr != nil {
				s.logger.Warn("failed to remove orphaned attachment", zap.Error(cleanupErr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// Get fetches a single assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch assignment")
	}
	return assignment, nil
}

// ListForInstructor returns the assignments of a course for its instructor.
func (s *AssignmentService) ListForInstructor(ctx context.Context, courseID, instructorID string) ([]models.Assignment, error) {
	if err := s.requirePairing(ctx, instructorID, courseID); err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// ListForStudent returns the assignments of a course joined with the calling
// student's own submissions. The student must hold a completed enrollment.
func (s *AssignmentService) ListForStudent(ctx context.Context, courseID, studentID string) ([]models.AssignmentWithSubmission, error) {
	enrolled, err := s.enrollments.IsEnrolled(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
	}

	assignments, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	submissions, err := s.submissions.MapByCourseAndStudent(ctx, courseID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch submissions")
	}

	result := make([]models.AssignmentWithSubmission, 0, len(assignments))
	for _, assignment := range assignments {
		item := models.AssignmentWithSubmission{Assignment: assignment}
		if assignment.AttachmentPath != nil {
			attachmentURL := fmt.Sprintf("/assignments/%s/attachment", assignment.ID)
			item.AttachmentURL = &attachmentURL
		}
		if submission, ok := submissions[assignment.ID]; ok {
			item.Submitted = true
			item.Graded = submission.IsGraded()
			item.Grade = submission.Grade
			item.Feedback = submission.Feedback
			submittedAt := submission.SubmittedAt
			item.SubmittedAt = &submittedAt
			submissionID := submission.ID
			item.SubmissionID = &submissionID
			for _, file := range submission.Files {
				item.FileURLs = append(item.FileURLs, fmt.Sprintf("/submissions/%s/files?path=%s", submission.ID, url.QueryEscape(file.StoredPath)))
			}
		}
		result = append(result, item)
	}
	return result, nil
}

// Delete removes an assignment and its stored attachment.
func (s *AssignmentService) Delete(ctx context.Context, id, instructorID string) error {
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requirePairing(ctx, instructorID, assignment.CourseID); err != nil {
		return err
	}
	if err := s.assignments.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	if assignment.AttachmentPath != nil {
		if err := s.store.Delete(*assignment.AttachmentPath); err != nil {
			s.logger.Warn("failed to remove assignment attachment", zap.Error(err))
		}
	}
	return nil
}

// OpenAttachment streams the assignment attachment for an authorized caller.
// Instructors must be paired with the course; students must be enrolled.
func (s *AssignmentService) OpenAttachment(ctx context.Context, id string, caller *models.User) (*os.File, *models.Assignment, error) {
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if assignment.AttachmentPath == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "assignment has no attachment")
	}

	switch caller.Role {
	case models.RoleTeacher:
		if err := s.requirePairing(ctx, caller.ID, assignment.CourseID); err != nil {
			return nil, nil, err
		}
	case models.RoleStudent:
		enrolled, err := s.enrollments.IsEnrolled(ctx, caller.ID, assignment.CourseID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
		}
	case models.RoleAdmin, models.RoleManager:
		// full read access
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "forbidden")
	}

	file, err := s.store.Open(*assignment.AttachmentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attachment missing from storage")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment")
	}
	return file, assignment, nil
}

func (s *AssignmentService) requirePairing(ctx context.Context, instructorID, courseID string) error {
	assigned, err := s.pairings.IsInstructorAssigned(ctx, instructorID, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor assignment")
	}
	if !assigned {
		return appErrors.Clone(appErrors.ErrForbidden, "not the instructor of this course")
	}
	return nil
}
