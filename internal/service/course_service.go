package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/storage"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	ListAvailableForStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error)
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseAssignmentRepository interface {
	FindByCourse(ctx context.Context, courseID string) (*models.CourseAssignment, error)
	Create(ctx context.Context, assignment *models.CourseAssignment) error
	UpdateInstructor(ctx context.Context, courseID, instructorID string) error
	ListByInstructor(ctx context.Context, instructorID string) ([]models.CourseAssignmentDetail, error)
}

type courseUserRepository interface {
	FindByIDAndRole(ctx context.Context, id string, role models.UserRole) (*models.User, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type thumbnailStore interface {
	SaveUpload(scope string, header *multipart.FileHeader) (string, error)
	Delete(relPath string) error
}

type cacheMetricsRecorder interface {
	RecordCacheOperation(hit bool)
}

const (
	availableCoursesKeyFmt     = "catalog:available:%s"
	availableCoursesKeyPattern = "catalog:available:*"
)

// CourseService provides course catalog use cases.
type CourseService struct {
	courses     courseRepository
	assignments courseAssignmentRepository
	users       courseUserRepository
	cache       catalogCache
	store       thumbnailStore
	metrics     cacheMetricsRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	cacheTTL    time.Duration
}

// SetMetrics attaches the cache hit ratio recorder after construction.
func (s *CourseService) SetMetrics(metrics cacheMetricsRecorder) {
	s.metrics = metrics
}

// NewCourseService constructs a CourseService.
func NewCourseService(courses courseRepository, assignments courseAssignmentRepository, users courseUserRepository, cache catalogCache, store thumbnailStore, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{
		courses:     courses,
		assignments: assignments,
		users:       users,
		cache:       cache,
		store:       store,
		validator:   validate,
		logger:      logger,
		cacheTTL:    cacheTTL,
	}
}

// Create registers a new course. The course code must be globally unique.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest, thumbnail *multipart.FileHeader) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	taken, err := s.courses.CodeExists(ctx, req.Code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	}

	status := models.CourseStatusDraft
	if req.Status != "" {
		status = models.CourseStatus(req.Status)
	}

	course := &models.Course{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Duration:    models.CourseDuration(req.Duration),
		Price:       req.Price,
		Status:      status,
	}

	if thumbnail != nil {
		path, err := s.store.SaveUpload(storage.ScopeThumbnails, thumbnail)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store thumbnail")
		}
		course.ThumbnailPath = &path
	}

	if err := s.courses.Create(ctx, course); err != nil {
		if course.ThumbnailPath != nil {
			if cleanupErr := s.store.Delete(*course.ThumbnailPath); cleanupErr != nil {
				s.logger.Warn("failed to remove orphaned thumbnail", zap.Error(cleanupErr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// Get fetches a course with its assigned instructor.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	detail := &models.CourseDetail{Course: *course}
	assignment, err := s.assignments.FindByCourse(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch instructor assignment")
		}
		return detail, nil
	}
	detail.InstructorID = &assignment.InstructorID

	instructor, err := s.users.FindByIDAndRole(ctx, assignment.InstructorID, models.RoleTeacher)
	if err == nil {
		detail.InstructorName = &instructor.FullName
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch instructor")
	}
	return detail, nil
}

// List returns a filtered, paginated course catalog.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, total, nil
}

// ListAvailable returns active courses the student can still enroll in. The
// per-student result is cached and invalidated on any catalog write.
func (s *CourseService) ListAvailable(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	key := fmt.Sprintf(availableCoursesKeyFmt, studentID)

	var cached []models.CourseDetail
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		s.recordCacheHit(true)
		return cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("catalog cache read failed", zap.Error(err))
	}
	s.recordCacheHit(false)

	courses, err := s.courses.ListAvailableForStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available courses")
	}

	if err := s.cache.Set(ctx, key, courses, s.cacheTTL); err != nil {
		s.logger.Warn("catalog cache write failed", zap.Error(err))
	}
	return courses, nil
}

// Update rewrites the mutable fields of a course.
func (s *CourseService) Update(ctx context.Context, id string, req models.UpdateCourseRequest, thumbnail *multipart.FileHeader) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	course.Name = req.Name
	course.Description = req.Description
	course.Duration = models.CourseDuration(req.Duration)
	course.Price = req.Price
	course.Status = models.CourseStatus(req.Status)

	if thumbnail != nil {
		path, err := s.store.SaveUpload(storage.ScopeThumbnails, thumbnail)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store thumbnail")
		}
		old := course.ThumbnailPath
		course.ThumbnailPath = &path
		if old != nil {
			if cleanupErr := s.store.Delete(*old); cleanupErr != nil {
				s.logger.Warn("failed to remove replaced thumbnail", zap.Error(cleanupErr))
			}
		}
	}

	if err := s.courses.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.courses.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidateCatalog(ctx)
	return nil
}

// AssignInstructor pairs a course with an instructor. A course already paired
// cannot be paired again; use ReassignInstructor instead.
func (s *CourseService) AssignInstructor(ctx context.Context, courseID string, req models.AssignInstructorRequest) (*models.CourseAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}

	if _, err := s.users.FindByIDAndRole(ctx, req.InstructorID, models.RoleTeacher); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch instructor")
	}

	if _, err := s.assignments.FindByCourse(ctx, courseID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already has an instructor")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor assignment")
	}

	assignment := &models.CourseAssignment{CourseID: courseID, InstructorID: req.InstructorID}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign instructor")
	}
	return assignment, nil
}

// ReassignInstructor replaces the instructor paired with a course.
func (s *CourseService) ReassignInstructor(ctx context.Context, courseID string, req models.AssignInstructorRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	if _, err := s.users.FindByIDAndRole(ctx, req.InstructorID, models.RoleTeacher); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch instructor")
	}

	if err := s.assignments.UpdateInstructor(ctx, courseID, req.InstructorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course has no instructor assignment")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reassign instructor")
	}
	return nil
}

// ListInstructorCourses returns the courses the instructor teaches.
func (s *CourseService) ListInstructorCourses(ctx context.Context, instructorID string) ([]models.CourseAssignmentDetail, error) {
	assignments, err := s.assignments.ListByInstructor(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructor courses")
	}
	return assignments, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, availableCoursesKeyPattern); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func (s *CourseService) recordCacheHit(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit)
	}
}
