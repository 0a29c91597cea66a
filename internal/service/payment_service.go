package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/pkg/chapa"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/jobs"
)

type paymentEnrollmentRepository interface {
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	FindByTxRef(ctx context.Context, txRef string) (*models.Enrollment, error)
	CreateCompleted(ctx context.Context, enrollment *models.Enrollment) error
	CreatePending(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
	Complete(ctx context.Context, id, courseID string) error
	MarkFailed(ctx context.Context, id string) error
}

type paymentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type paymentGateway interface {
	Initialize(ctx context.Context, req chapa.InitializeRequest) (*chapa.InitializeResponse, error)
	Verify(ctx context.Context, txRef string) (*chapa.VerifyResponse, error)
}

type paymentAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type verifyEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// EnrollmentResult is the outcome of an enrollment attempt: either an
// immediately completed enrollment (free course) or a hosted checkout to
// finish at the gateway.
type EnrollmentResult struct {
	Enrollment  *models.Enrollment `json:"enrollment,omitempty"`
	CheckoutURL string             `json:"checkout_url,omitempty"`
	TxRef       string             `json:"tx_ref,omitempty"`
}

// PaymentService drives paid enrollment through the Chapa hosted checkout.
type PaymentService struct {
	enrollments paymentEnrollmentRepository
	courses     paymentCourseRepository
	gateway     paymentGateway
	auditor     paymentAuditor
	cache       catalogCache
	queue       verifyEnqueuer
	logger      *zap.Logger
	returnURL   string
	callbackURL string
}

// NewPaymentService constructs a PaymentService. The queue is optional; when
// present, transient verification failures are retried in the background.
func NewPaymentService(enrollments paymentEnrollmentRepository, courses paymentCourseRepository, gateway paymentGateway, auditor paymentAuditor, cache catalogCache, queue verifyEnqueuer, logger *zap.Logger, returnURL, callbackURL string) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		enrollments: enrollments,
		courses:     courses,
		gateway:     gateway,
		auditor:     auditor,
		cache:       cache,
		queue:       queue,
		logger:      logger,
		returnURL:   returnURL,
		callbackURL: callbackURL,
	}
}

// SetQueue attaches the background verification queue. The queue handler
// closes over this service, so wiring happens after construction.
func (s *PaymentService) SetQueue(queue verifyEnqueuer) {
	s.queue = queue
}

// Enroll enrolls a student into an active course. Free courses complete
// immediately; priced courses open a gateway checkout and stay pending until
// verified.
func (s *PaymentService) Enroll(ctx context.Context, courseID string, student *models.User) (*EnrollmentResult, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if course.Status != models.CourseStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not open for enrollment")
	}

	existing, err := s.enrollments.FindByStudentAndCourse(ctx, student.ID, courseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if existing != nil {
		switch existing.Status {
		case models.EnrollmentCompleted:
			return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
		case models.EnrollmentPending:
			return nil, appErrors.Clone(appErrors.ErrConflict, "a payment for this course is already in progress")
		case models.EnrollmentFailed:
			// A failed attempt does not block another try; replace the row.
			if err := s.enrollments.Delete(ctx, existing.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear failed enrollment")
			}
		}
	}

	if course.Price <= 0 {
		enrollment := &models.Enrollment{StudentID: student.ID, CourseID: courseID}
		if err := s.enrollments.CreateCompleted(ctx, enrollment); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
		}
		s.invalidateCatalog(ctx, student.ID)
		return &EnrollmentResult{Enrollment: enrollment}, nil
	}

	return s.initiateCheckout(ctx, course, student)
}

func (s *PaymentService) initiateCheckout(ctx context.Context, course *models.Course, student *models.User) (*EnrollmentResult, error) {
	txRef := fmt.Sprintf("lms-%s", uuid.NewString())
	amount := course.Price
	currency := "ETB"

	enrollment := &models.Enrollment{
		StudentID:  student.ID,
		CourseID:   course.ID,
		TxRef:      &txRef,
		Amount:     &amount,
		Currency:   &currency,
		PayerEmail: &student.Email,
		PayerName:  &student.FullName,
	}
	if err := s.enrollments.CreatePending(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pending enrollment")
	}

	first, last := splitName(student.FullName)
	checkout, err := s.gateway.Initialize(ctx, chapa.InitializeRequest{
		Amount:      strconv.FormatFloat(amount, 'f', 2, 64),
		Currency:    currency,
		Email:       student.Email,
		FirstName:   first,
		LastName:    last,
		TxRef:       txRef,
		CallbackURL: s.callbackURL,
		ReturnURL:   s.returnURL,
	})
	if err != nil {
		// The pending row must not outlive a checkout that never opened.
		if cleanupErr := s.enrollments.Delete(ctx, enrollment.ID); cleanupErr != nil && !errors.Is(cleanupErr, sql.ErrNoRows) {
			s.logger.Error("failed to roll back pending enrollment", zap.String("tx_ref", txRef), zap.Error(cleanupErr))
		}
		var gatewayErr *chapa.GatewayError
		if errors.As(err, &gatewayErr) && !gatewayErr.Retryable {
			return nil, appErrors.Wrap(err, appErrors.ErrPaymentFailed.Code, appErrors.ErrPaymentFailed.Status, "gateway rejected the checkout")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrGateway.Code, appErrors.ErrGateway.Status, "payment gateway unavailable")
	}

	s.audit(ctx, student.ID, models.AuditActionPaymentInitiate, txRef)

	return &EnrollmentResult{CheckoutURL: checkout.CheckoutURL, TxRef: txRef}, nil
}

// Verify settles a pending enrollment against the gateway. It is idempotent:
// an enrollment already in a terminal state is returned as-is without another
// gateway call.
func (s *PaymentService) Verify(ctx context.Context, txRef string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByTxRef(ctx, txRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown transaction reference")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch enrollment")
	}
	if enrollment.IsTerminal() {
		return enrollment, nil
	}

	result, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		var gatewayErr *chapa.GatewayError
		if errors.As(err, &gatewayErr) && gatewayErr.Retryable {
			s.scheduleReverify(txRef)
			return nil, appErrors.Wrap(err, appErrors.ErrGateway.Code, appErrors.ErrGateway.Status, "verification temporarily unavailable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrGateway.Code, appErrors.ErrGateway.Status, "failed to verify payment")
	}

	switch result.Status {
	case chapa.StatusSuccess:
		if err := s.enrollments.Complete(ctx, enrollment.ID, enrollment.CourseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Lost the race to a concurrent verification; re-read the
				// settled row.
				return s.refetch(ctx, txRef)
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
		}
		enrollment.Status = models.EnrollmentCompleted
		s.invalidateCatalog(ctx, enrollment.StudentID)
		s.audit(ctx, enrollment.StudentID, models.AuditActionPaymentVerify, txRef)
		return enrollment, nil
	case chapa.StatusFailed:
		if err := s.enrollments.MarkFailed(ctx, enrollment.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark enrollment failed")
		}
		enrollment.Status = models.EnrollmentFailed
		s.audit(ctx, enrollment.StudentID, models.AuditActionPaymentVerify, txRef)
		return enrollment, appErrors.Clone(appErrors.ErrPaymentFailed, "")
	default:
		// Still pending at the gateway.
		return enrollment, nil
	}
}

// HandleCallback processes the asynchronous gateway callback. Errors are
// logged rather than surfaced; the gateway only needs an acknowledgement.
func (s *PaymentService) HandleCallback(ctx context.Context, txRef string) {
	if _, err := s.Verify(ctx, txRef); err != nil {
		s.logger.Warn("payment callback verification failed", zap.String("tx_ref", txRef), zap.Error(err))
	}
}

// VerifyJobHandler returns the queue handler that re-verifies a transaction
// reference in the background.
func (s *PaymentService) VerifyJobHandler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		txRef, ok := job.Payload.(string)
		if !ok {
			s.logger.Error("verify job carries unexpected payload", zap.Any("payload", job.Payload))
			return nil
		}
		_, err := s.Verify(ctx, txRef)
		if appErrors.IsRetryable(err) {
			return err
		}
		return nil
	}
}

func (s *PaymentService) scheduleReverify(txRef string) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:       uuid.NewString(),
		Type:     "payment.verify",
		Payload:  txRef,
		Enqueued: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to enqueue verification retry", zap.String("tx_ref", txRef), zap.Error(err))
	}
}

func (s *PaymentService) refetch(ctx context.Context, txRef string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByTxRef(ctx, txRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch enrollment")
	}
	return enrollment, nil
}

func (s *PaymentService) invalidateCatalog(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf(availableCoursesKeyFmt, studentID)); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func (s *PaymentService) audit(ctx context.Context, userID string, action string, txRef string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "payment",
		ResourceID: &txRef,
		Detail:     []byte(fmt.Sprintf(`{"tx_ref":%q}`, txRef)),
	})
	if err != nil {
		s.logger.Warn("failed to record payment audit log", zap.Error(err))
	}
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
