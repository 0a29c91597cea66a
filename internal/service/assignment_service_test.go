package service

import (
	"context"
	"database/sql"
	"fmt"
	"mime/multipart"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-lms-api/internal/models"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
)

type mockAssignmentRepo struct {
	assignments map[string]models.Assignment
	deleted     []string
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	if m.assignments == nil {
		m.assignments = make(map[string]models.Assignment)
	}
	assignment.ID = "a-" + assignment.Title
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &assignment, nil
}

func (m *mockAssignmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, assignment := range m.assignments {
		if assignment.CourseID == courseID {
			out = append(out, assignment)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.assignments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.assignments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockSubmissionLookup struct {
	byAssignment map[string]models.Submission
}

func (m *mockSubmissionLookup) MapByCourseAndStudent(ctx context.Context, courseID, studentID string) (map[string]models.Submission, error) {
	return m.byAssignment, nil
}

// mockFileStore satisfies materialStore without touching the filesystem.
type mockFileStore struct {
	openErr error
	opened  []string
	deleted []string
}

func (m *mockFileStore) SaveUpload(scope string, header *multipart.FileHeader) (string, error) {
	return scope + "/" + header.Filename, nil
}

func (m *mockFileStore) Open(relPath string) (*os.File, error) {
	m.opened = append(m.opened, relPath)
	if m.openErr != nil {
		return nil, m.openErr
	}
	return os.Open(os.DevNull)
}

func (m *mockFileStore) Delete(relPath string) error {
	m.deleted = append(m.deleted, relPath)
	return nil
}

func attachmentPath(p string) *string { return &p }

func TestOpenAttachmentMissingOnDisk(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"a1": {ID: "a1", CourseID: "c1", Title: "Essay", AttachmentPath: attachmentPath("materials/essay.pdf")},
	}}
	store := &mockFileStore{openErr: fmt.Errorf("open stored file: %w", os.ErrNotExist)}
	svc := NewAssignmentService(repo, &mockPairings{}, &mockEnrollments{enrolled: map[string]bool{"s1|c1": true}}, &mockSubmissionLookup{}, store, nil, nil)

	_, _, err := svc.OpenAttachment(context.Background(), "a1", &models.User{ID: "s1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
	assert.Equal(t, []string{"materials/essay.pdf"}, store.opened)
}

func TestOpenAttachmentStoreFailure(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"a1": {ID: "a1", CourseID: "c1", Title: "Essay", AttachmentPath: attachmentPath("materials/essay.pdf")},
	}}
	store := &mockFileStore{openErr: fmt.Errorf("open stored file: %w", os.ErrPermission)}
	svc := NewAssignmentService(repo, &mockPairings{}, &mockEnrollments{enrolled: map[string]bool{"s1|c1": true}}, &mockSubmissionLookup{}, store, nil, nil)

	_, _, err := svc.OpenAttachment(context.Background(), "a1", &models.User{ID: "s1", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Status, appErrors.FromError(err).Status)
}

func TestOpenAttachmentRequiresEnrollment(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"a1": {ID: "a1", CourseID: "c1", Title: "Essay", AttachmentPath: attachmentPath("materials/essay.pdf")},
	}}
	svc := NewAssignmentService(repo, &mockPairings{}, &mockEnrollments{}, &mockSubmissionLookup{}, &mockFileStore{}, nil, nil)

	_, _, err := svc.OpenAttachment(context.Background(), "a1", &models.User{ID: "outsider", Role: models.RoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListForStudentBuildsDownloadURLs(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"a1": {ID: "a1", CourseID: "c1", Title: "Essay", AttachmentPath: attachmentPath("materials/essay.pdf")},
	}}
	submissions := &mockSubmissionLookup{byAssignment: map[string]models.Submission{
		"a1": {
			ID:           "sub1",
			AssignmentID: "a1",
			StudentID:    "s1",
			SubmittedAt:  time.Now().UTC(),
			Files: models.SubmissionFiles{
				{Name: "draft.pdf", StoredPath: "submissions/draft 1.pdf"},
			},
		},
	}}
	svc := NewAssignmentService(repo, &mockPairings{}, &mockEnrollments{enrolled: map[string]bool{"s1|c1": true}}, submissions, &mockFileStore{}, nil, nil)

	items, err := svc.ListForStudent(context.Background(), "c1", "s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].AttachmentURL)
	assert.Equal(t, "/assignments/a1/attachment", *items[0].AttachmentURL)
	assert.Equal(t, []string{"/submissions/sub1/files?path=submissions%2Fdraft+1.pdf"}, items[0].FileURLs)
	assert.True(t, items[0].Submitted)
}

func TestListForStudentOmitsURLsWithoutUploads(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"a1": {ID: "a1", CourseID: "c1", Title: "Quiz"},
	}}
	svc := NewAssignmentService(repo, &mockPairings{}, &mockEnrollments{enrolled: map[string]bool{"s1|c1": true}}, &mockSubmissionLookup{}, &mockFileStore{}, nil, nil)

	items, err := svc.ListForStudent(context.Background(), "c1", "s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].AttachmentURL)
	assert.Empty(t, items[0].FileURLs)
}
