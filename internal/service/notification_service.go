package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

type notificationRepository interface {
	CreateWithReceipts(ctx context.Context, notification *models.Notification, recipientIDs []string) error
	FeedForStudent(ctx context.Context, studentID string, unreadOnly bool) ([]models.NotificationFeedItem, error)
	MarkRead(ctx context.Context, receiptID, studentID string, readAt time.Time) error
}

type rosterLookup interface {
	ListEnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// NotificationService fans course notifications out to enrolled students.
type NotificationService struct {
	notifications notificationRepository
	roster        rosterLookup
	pairings      instructorPairingChecker
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(notifications notificationRepository, roster rosterLookup, pairings instructorPairingChecker, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &NotificationService{
		notifications: notifications,
		roster:        roster,
		pairings:      pairings,
		validator:     validate,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create posts a notification to a course. Only the instructor paired with
// the course may post. Explicit recipients must be enrolled; an empty list
// broadcasts to everyone currently on the roster.
func (s *NotificationService) Create(ctx context.Context, courseID, instructorID string, req models.CreateNotificationRequest) (*models.Notification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	assigned, err := s.pairings.IsInstructorAssigned(ctx, instructorID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor assignment")
	}
	if !assigned {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the instructor of this course")
	}

	recipients := req.Recipients
	broadcast := len(recipients) == 0
	if broadcast {
		recipients, err = s.roster.ListEnrolledStudentIDs(ctx, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course roster")
		}
	} else {
		for _, studentID := range recipients {
			enrolled, err := s.roster.IsEnrolled(ctx, studentID, courseID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check recipient enrollment")
			}
			if !enrolled {
				return nil, appErrors.Clone(appErrors.ErrValidation, "recipient is not enrolled in this course")
			}
		}
	}

	notification := &models.Notification{
		CourseID:  courseID,
		Title:     req.Title,
		Message:   req.Message,
		PostedBy:  instructorID,
		Broadcast: broadcast,
		CreatedAt: s.now(),
	}
	if err := s.notifications.CreateWithReceipts(ctx, notification, recipients); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post notification")
	}
	return notification, nil
}

// Feed returns the student's notification feed, optionally unread only.
func (s *NotificationService) Feed(ctx context.Context, studentID string, unreadOnly bool) ([]models.NotificationFeedItem, error) {
	items, err := s.notifications.FeedForStudent(ctx, studentID, unreadOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification feed")
	}
	return items, nil
}

// MarkRead marks one receipt as read for its owning student. Marking an
// already-read receipt is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, receiptID, studentID string) error {
	if err := s.notifications.MarkRead(ctx, receiptID, studentID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}
