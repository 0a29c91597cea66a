package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/pkg/chapa"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/jobs"
)

type mockEnrollmentRepo struct {
	byPair      map[string]models.Enrollment
	byTxRef     map[string]models.Enrollment
	deleted     []string
	completed   []string
	failed      []string
	completeErr error
}

func (m *mockEnrollmentRepo) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	enrollment, ok := m.byPair[studentID+"|"+courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

func (m *mockEnrollmentRepo) FindByTxRef(ctx context.Context, txRef string) (*models.Enrollment, error) {
	enrollment, ok := m.byTxRef[txRef]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

func (m *mockEnrollmentRepo) store(enrollment models.Enrollment) {
	if m.byPair == nil {
		m.byPair = make(map[string]models.Enrollment)
	}
	if m.byTxRef == nil {
		m.byTxRef = make(map[string]models.Enrollment)
	}
	m.byPair[enrollment.StudentID+"|"+enrollment.CourseID] = enrollment
	if enrollment.TxRef != nil {
		m.byTxRef[*enrollment.TxRef] = enrollment
	}
}

func (m *mockEnrollmentRepo) CreateCompleted(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = "e-" + enrollment.StudentID + "-" + enrollment.CourseID
	enrollment.Status = models.EnrollmentCompleted
	m.store(*enrollment)
	return nil
}

func (m *mockEnrollmentRepo) CreatePending(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = "e-" + enrollment.StudentID + "-" + enrollment.CourseID
	enrollment.Status = models.EnrollmentPending
	m.store(*enrollment)
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	for key, enrollment := range m.byPair {
		if enrollment.ID == id {
			delete(m.byPair, key)
			if enrollment.TxRef != nil {
				delete(m.byTxRef, *enrollment.TxRef)
			}
		}
	}
	return nil
}

func (m *mockEnrollmentRepo) Complete(ctx context.Context, id, courseID string) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	for key, enrollment := range m.byPair {
		if enrollment.ID == id {
			if enrollment.Status != models.EnrollmentPending {
				return sql.ErrNoRows
			}
			enrollment.Status = models.EnrollmentCompleted
			m.byPair[key] = enrollment
			if enrollment.TxRef != nil {
				m.byTxRef[*enrollment.TxRef] = enrollment
			}
			m.completed = append(m.completed, id)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockEnrollmentRepo) MarkFailed(ctx context.Context, id string) error {
	for key, enrollment := range m.byPair {
		if enrollment.ID == id {
			enrollment.Status = models.EnrollmentFailed
			m.byPair[key] = enrollment
			if enrollment.TxRef != nil {
				m.byTxRef[*enrollment.TxRef] = enrollment
			}
			m.failed = append(m.failed, id)
		}
	}
	return nil
}

type mockCourseLookup struct {
	courses map[string]models.Course
}

func (m *mockCourseLookup) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

type mockGateway struct {
	initResponse *chapa.InitializeResponse
	initErr      error
	verifyStatus string
	verifyErr    error
	verifyCalls  int
}

func (m *mockGateway) Initialize(ctx context.Context, req chapa.InitializeRequest) (*chapa.InitializeResponse, error) {
	if m.initErr != nil {
		return nil, m.initErr
	}
	return m.initResponse, nil
}

func (m *mockGateway) Verify(ctx context.Context, txRef string) (*chapa.VerifyResponse, error) {
	m.verifyCalls++
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return &chapa.VerifyResponse{Status: m.verifyStatus, TxRef: txRef}, nil
}

type mockAuditor struct {
	logs []models.AuditLog
}

func (m *mockAuditor) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

type mockCache struct {
	deletedPatterns []string
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletedPatterns = append(m.deletedPatterns, pattern)
	return nil
}

type mockQueue struct {
	enqueued []jobs.Job
}

func (m *mockQueue) Enqueue(job jobs.Job) error {
	m.enqueued = append(m.enqueued, job)
	return nil
}

func newPaymentService(enrollments *mockEnrollmentRepo, courses *mockCourseLookup, gateway *mockGateway) (*PaymentService, *mockCache, *mockQueue) {
	cache := &mockCache{}
	queue := &mockQueue{}
	svc := NewPaymentService(enrollments, courses, gateway, &mockAuditor{}, cache, queue, nil, "https://lms.example.com/return", "https://lms.example.com/api/v1/payments/callback")
	return svc, cache, queue
}

func student() *models.User {
	return &models.User{ID: "s1", Username: "jdoe", Email: "jdoe@example.com", FullName: "Jordan Doe", Role: models.RoleStudent}
}

func TestEnrollFreeCourseCompletesImmediately(t *testing.T) {
	enrollments := &mockEnrollmentRepo{}
	courses := &mockCourseLookup{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusActive, Price: 0},
	}}
	svc, cache, _ := newPaymentService(enrollments, courses, &mockGateway{})

	result, err := svc.Enroll(context.Background(), "c1", student())
	require.NoError(t, err)
	require.NotNil(t, result.Enrollment)
	assert.Equal(t, models.EnrollmentCompleted, result.Enrollment.Status)
	assert.Empty(t, result.CheckoutURL)
	assert.NotEmpty(t, cache.deletedPatterns)
}

func TestEnrollPricedCourseOpensCheckout(t *testing.T) {
	enrollments := &mockEnrollmentRepo{}
	courses := &mockCourseLookup{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusActive, Price: 499.99},
	}}
	gateway := &mockGateway{initResponse: &chapa.InitializeResponse{CheckoutURL: "https://checkout.chapa.co/x"}}
	svc, _, _ := newPaymentService(enrollments, courses, gateway)

	result, err := svc.Enroll(context.Background(), "c1", student())
	require.NoError(t, err)
	assert.Nil(t, result.Enrollment)
	assert.Equal(t, "https://checkout.chapa.co/x", result.CheckoutURL)
	assert.NotEmpty(t, result.TxRef)

	pending := enrollments.byPair["s1|c1"]
	assert.Equal(t, models.EnrollmentPending, pending.Status)
	assert.Equal(t, result.TxRef, *pending.TxRef)
}

func TestEnrollRollsBackPendingOnGatewayFailure(t *testing.T) {
	enrollments := &mockEnrollmentRepo{}
	courses := &mockCourseLookup{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusActive, Price: 100},
	}}
	gateway := &mockGateway{initErr: &chapa.GatewayError{Retryable: true, Message: "timeout"}}
	svc, _, _ := newPaymentService(enrollments, courses, gateway)

	_, err := svc.Enroll(context.Background(), "c1", student())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGateway.Code, appErrors.FromError(err).Code)
	assert.Len(t, enrollments.deleted, 1)
	assert.Empty(t, enrollments.byPair)
}

func TestEnrollConflictsWhilePending(t *testing.T) {
	txRef := "lms-abc"
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentPending, TxRef: &txRef})
	courses := &mockCourseLookup{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusActive, Price: 100},
	}}
	svc, _, _ := newPaymentService(enrollments, courses, &mockGateway{})

	_, err := svc.Enroll(context.Background(), "c1", student())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsInactiveCourse(t *testing.T) {
	courses := &mockCourseLookup{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusDraft, Price: 0},
	}}
	svc, _, _ := newPaymentService(&mockEnrollmentRepo{}, courses, &mockGateway{})

	_, err := svc.Enroll(context.Background(), "c1", student())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVerifyCompletesPendingEnrollment(t *testing.T) {
	txRef := "lms-abc"
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentPending, TxRef: &txRef})
	gateway := &mockGateway{verifyStatus: chapa.StatusSuccess}
	svc, cache, _ := newPaymentService(enrollments, &mockCourseLookup{}, gateway)

	enrollment, err := svc.Verify(context.Background(), txRef)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
	assert.Contains(t, enrollments.completed, "e1")
	assert.NotEmpty(t, cache.deletedPatterns)
}

func TestVerifyIsIdempotentForSettledEnrollment(t *testing.T) {
	txRef := "lms-abc"
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentCompleted, TxRef: &txRef})
	gateway := &mockGateway{verifyStatus: chapa.StatusSuccess}
	svc, _, _ := newPaymentService(enrollments, &mockCourseLookup{}, gateway)

	enrollment, err := svc.Verify(context.Background(), txRef)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
	assert.Zero(t, gateway.verifyCalls)
}

func TestVerifyMarksFailed(t *testing.T) {
	txRef := "lms-abc"
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentPending, TxRef: &txRef})
	gateway := &mockGateway{verifyStatus: chapa.StatusFailed}
	svc, _, _ := newPaymentService(enrollments, &mockCourseLookup{}, gateway)

	enrollment, err := svc.Verify(context.Background(), txRef)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentFailed.Code, appErrors.FromError(err).Code)
	require.NotNil(t, enrollment)
	assert.Equal(t, models.EnrollmentFailed, enrollment.Status)
	assert.Contains(t, enrollments.failed, "e1")
}

func TestVerifySchedulesRetryOnTransientFailure(t *testing.T) {
	txRef := "lms-abc"
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentPending, TxRef: &txRef})
	gateway := &mockGateway{verifyErr: &chapa.GatewayError{Retryable: true, Message: "upstream 502"}}
	svc, _, queue := newPaymentService(enrollments, &mockCourseLookup{}, gateway)

	_, err := svc.Verify(context.Background(), txRef)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGateway.Code, appErrors.FromError(err).Code)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "payment.verify", queue.enqueued[0].Type)
	assert.Equal(t, txRef, queue.enqueued[0].Payload)
}

func TestVerifyUnknownTxRef(t *testing.T) {
	svc, _, _ := newPaymentService(&mockEnrollmentRepo{}, &mockCourseLookup{}, &mockGateway{})

	_, err := svc.Verify(context.Background(), "lms-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestVerifyJobHandlerStopsOnTerminalOutcome(t *testing.T) {
	txRef := "lms-abc"
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentPending, TxRef: &txRef})
	gateway := &mockGateway{verifyStatus: chapa.StatusFailed}
	svc, _, _ := newPaymentService(enrollments, &mockCourseLookup{}, gateway)

	handler := svc.VerifyJobHandler()
	err := handler(context.Background(), jobs.Job{ID: "j1", Type: "payment.verify", Payload: txRef})
	// Terminal failure must not be retried by the queue.
	assert.NoError(t, err)
}

func TestVerifyJobHandlerRetriesTransientFailure(t *testing.T) {
	txRef := "lms-abc"
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentPending, TxRef: &txRef})
	gateway := &mockGateway{verifyErr: &chapa.GatewayError{Retryable: true, Message: "timeout"}}
	svc, _, _ := newPaymentService(enrollments, &mockCourseLookup{}, gateway)

	handler := svc.VerifyJobHandler()
	err := handler(context.Background(), jobs.Job{ID: "j1", Type: "payment.verify", Payload: txRef})
	require.Error(t, err)
	assert.True(t, appErrors.IsRetryable(err))
}

func TestVerifyConcurrentCompletionRace(t *testing.T) {
	txRef := "lms-abc"
	enrollments := &mockEnrollmentRepo{completeErr: sql.ErrNoRows}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentPending, TxRef: &txRef})
	gateway := &mockGateway{verifyStatus: chapa.StatusSuccess}
	svc, _, _ := newPaymentService(enrollments, &mockCourseLookup{}, gateway)

	// A concurrent verification settled the row; the status update matches
	// nothing and the settled row is re-read instead of surfacing an error.
	enrollment, err := svc.Verify(context.Background(), txRef)
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
}

func TestEnrollTwiceAfterCompletion(t *testing.T) {
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentCompleted})
	courses := &mockCourseLookup{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusActive, Price: 0},
	}}
	svc, _, _ := newPaymentService(enrollments, courses, &mockGateway{})

	_, err := svc.Enroll(context.Background(), "c1", student())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	// The settled row is untouched by the rejected attempt.
	assert.Empty(t, enrollments.deleted)
	assert.Equal(t, models.EnrollmentCompleted, enrollments.byPair["s1|c1"].Status)
}

func TestEnrollRetriesAfterFailure(t *testing.T) {
	enrollments := &mockEnrollmentRepo{}
	enrollments.store(models.Enrollment{ID: "e1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentFailed})
	courses := &mockCourseLookup{courses: map[string]models.Course{
		"c1": {ID: "c1", Status: models.CourseStatusActive, Price: 0},
	}}
	svc, _, _ := newPaymentService(enrollments, courses, &mockGateway{})

	result, err := svc.Enroll(context.Background(), "c1", student())
	require.NoError(t, err)
	assert.Contains(t, enrollments.deleted, "e1")
	assert.Equal(t, models.EnrollmentCompleted, result.Enrollment.Status)
}
