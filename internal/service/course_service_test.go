package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

const instructorID = "7b8f3c1a-9d2e-4f5a-8b6c-1d2e3f4a5b6c"

type mockCourseRepo struct {
	courses        map[string]models.Course
	codes          map[string]bool
	availableCalls int
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = "c-" + course.Code
	if m.courses == nil {
		m.courses = make(map[string]models.Course)
	}
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (m *mockCourseRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	return m.codes[code], nil
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var details []models.CourseDetail
	for _, course := range m.courses {
		details = append(details, models.CourseDetail{Course: course})
	}
	return details, len(details), nil
}

func (m *mockCourseRepo) ListAvailableForStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	m.availableCalls++
	var details []models.CourseDetail
	for _, course := range m.courses {
		if course.Status == models.CourseStatusActive {
			details = append(details, models.CourseDetail{Course: course})
		}
	}
	return details, nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if _, ok := m.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	return nil
}

type mockPairRepo struct {
	byCourse   map[string]models.CourseAssignment
	reassigned []string
}

func (m *mockPairRepo) FindByCourse(ctx context.Context, courseID string) (*models.CourseAssignment, error) {
	assignment, ok := m.byCourse[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &assignment, nil
}

func (m *mockPairRepo) Create(ctx context.Context, assignment *models.CourseAssignment) error {
	assignment.ID = "ca-" + assignment.CourseID
	if m.byCourse == nil {
		m.byCourse = make(map[string]models.CourseAssignment)
	}
	m.byCourse[assignment.CourseID] = *assignment
	return nil
}

func (m *mockPairRepo) UpdateInstructor(ctx context.Context, courseID, instructorID string) error {
	assignment, ok := m.byCourse[courseID]
	if !ok {
		return sql.ErrNoRows
	}
	assignment.InstructorID = instructorID
	m.byCourse[courseID] = assignment
	m.reassigned = append(m.reassigned, courseID)
	return nil
}

func (m *mockPairRepo) ListByInstructor(ctx context.Context, instructorID string) ([]models.CourseAssignmentDetail, error) {
	var details []models.CourseAssignmentDetail
	for _, assignment := range m.byCourse {
		if assignment.InstructorID == instructorID {
			details = append(details, models.CourseAssignmentDetail{CourseAssignment: assignment})
		}
	}
	return details, nil
}

// mockCatalogCache round-trips stored values through JSON the way the Redis
// cache does, so Get fills dest with a detached copy.
type mockCatalogCache struct {
	entries         map[string][]byte
	deletedPatterns []string
}

func (m *mockCatalogCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCatalogCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCatalogCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletedPatterns = append(m.deletedPatterns, pattern)
	m.entries = nil
	return nil
}

func newCourseService(courses *mockCourseRepo, pairs *mockPairRepo, users *mockUserLookup) (*CourseService, *mockCatalogCache) {
	cache := &mockCatalogCache{}
	svc := NewCourseService(courses, pairs, users, cache, nil, nil, nil, time.Minute)
	return svc, cache
}

func validCreateRequest() models.CreateCourseRequest {
	return models.CreateCourseRequest{
		Name:     "Distributed Systems",
		Code:     "CS-401",
		Duration: "12_weeks",
		Price:    250,
	}
}

func TestCreateCourseDefaultsToDraft(t *testing.T) {
	courses := &mockCourseRepo{}
	svc, cache := newCourseService(courses, &mockPairRepo{}, &mockUserLookup{})

	course, err := svc.Create(context.Background(), validCreateRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusDraft, course.Status)
	assert.NotEmpty(t, course.ID)
	assert.Contains(t, cache.deletedPatterns, availableCoursesKeyPattern)
}

func TestCreateCourseRejectsDuplicateCode(t *testing.T) {
	courses := &mockCourseRepo{codes: map[string]bool{"CS-401": true}}
	svc, _ := newCourseService(courses, &mockPairRepo{}, &mockUserLookup{})

	_, err := svc.Create(context.Background(), validCreateRequest(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateCourseRejectsUnknownDuration(t *testing.T) {
	svc, _ := newCourseService(&mockCourseRepo{}, &mockPairRepo{}, &mockUserLookup{})

	req := validCreateRequest()
	req.Duration = "6_weeks"
	_, err := svc.Create(context.Background(), req, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListAvailableServesFromCache(t *testing.T) {
	courses := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Name: "Algorithms", Code: "CS-201", Status: models.CourseStatusActive},
		"c2": {ID: "c2", Name: "Drafting", Code: "CS-999", Status: models.CourseStatusDraft},
	}}
	svc, _ := newCourseService(courses, &mockPairRepo{}, &mockUserLookup{})

	first, err := svc.ListAvailable(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.ListAvailable(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, courses.availableCalls)
}

func TestUpdateCourseInvalidatesCatalog(t *testing.T) {
	courses := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Name: "Algorithms", Code: "CS-201", Duration: models.Duration8Weeks, Status: models.CourseStatusActive},
	}}
	svc, cache := newCourseService(courses, &mockPairRepo{}, &mockUserLookup{})

	// Warm the cache, then mutate the catalog.
	_, err := svc.ListAvailable(context.Background(), "s1")
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), "c1", models.UpdateCourseRequest{
		Name:     "Advanced Algorithms",
		Duration: "12_weeks",
		Price:    100,
		Status:   "archived",
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, cache.deletedPatterns, availableCoursesKeyPattern)
	assert.Empty(t, cache.entries)
}

func TestAssignInstructor(t *testing.T) {
	courses := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Name: "Algorithms", Code: "CS-201", Status: models.CourseStatusActive},
	}}
	users := &mockUserLookup{users: map[string]models.User{
		instructorID: {ID: instructorID, FullName: "Prof. Ada", Role: models.RoleTeacher},
	}}
	pairs := &mockPairRepo{}
	svc, _ := newCourseService(courses, pairs, users)

	assignment, err := svc.AssignInstructor(context.Background(), "c1", models.AssignInstructorRequest{InstructorID: instructorID})
	require.NoError(t, err)
	assert.Equal(t, instructorID, assignment.InstructorID)

	// A second pairing on the same course must be rejected.
	_, err = svc.AssignInstructor(context.Background(), "c1", models.AssignInstructorRequest{InstructorID: instructorID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignInstructorRejectsUnknownInstructor(t *testing.T) {
	courses := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Name: "Algorithms", Code: "CS-201"},
	}}
	svc, _ := newCourseService(courses, &mockPairRepo{}, &mockUserLookup{})

	_, err := svc.AssignInstructor(context.Background(), "c1", models.AssignInstructorRequest{InstructorID: instructorID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReassignInstructorRequiresExistingPairing(t *testing.T) {
	users := &mockUserLookup{users: map[string]models.User{
		instructorID: {ID: instructorID, FullName: "Prof. Ada", Role: models.RoleTeacher},
	}}
	svc, _ := newCourseService(&mockCourseRepo{}, &mockPairRepo{}, users)

	err := svc.ReassignInstructor(context.Background(), "c1", models.AssignInstructorRequest{InstructorID: instructorID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetCourseIncludesInstructor(t *testing.T) {
	courses := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Name: "Algorithms", Code: "CS-201"},
	}}
	users := &mockUserLookup{users: map[string]models.User{
		instructorID: {ID: instructorID, FullName: "Prof. Ada", Role: models.RoleTeacher},
	}}
	pairs := &mockPairRepo{byCourse: map[string]models.CourseAssignment{
		"c1": {ID: "ca-c1", CourseID: "c1", InstructorID: instructorID},
	}}
	svc, _ := newCourseService(courses, pairs, users)

	detail, err := svc.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, detail.InstructorID)
	assert.Equal(t, instructorID, *detail.InstructorID)
	require.NotNil(t, detail.InstructorName)
	assert.Equal(t, "Prof. Ada", *detail.InstructorName)
}

type mockCacheMetrics struct {
	hits   int
	misses int
}

func (m *mockCacheMetrics) RecordCacheOperation(hit bool) {
	if hit {
		m.hits++
		return
	}
	m.misses++
}

func TestListAvailableRecordsCacheMetrics(t *testing.T) {
	courses := &mockCourseRepo{courses: map[string]models.Course{
		"c1": {ID: "c1", Name: "Algorithms", Code: "CS-201", Status: models.CourseStatusActive},
	}}
	svc, _ := newCourseService(courses, &mockPairRepo{}, &mockUserLookup{})
	metrics := &mockCacheMetrics{}
	svc.SetMetrics(metrics)

	_, err := svc.ListAvailable(context.Background(), "s1")
	require.NoError(t, err)
	_, err = svc.ListAvailable(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 1, metrics.hits)
}
