package handler

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/service"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/response"
)

// SubmissionHandler wires HTTP endpoints to the submission service.
type SubmissionHandler struct {
	service *service.SubmissionService
	metrics *service.MetricsService
}

// NewSubmissionHandler creates a new handler.
func NewSubmissionHandler(svc *service.SubmissionService, metrics *service.MetricsService) *SubmissionHandler {
	return &SubmissionHandler{service: svc, metrics: metrics}
}

// Submit godoc
// @Summary Submit assignment work
// @Description Record the calling student's files and text for an assignment; resubmission overwrites
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Assignment ID"
// @Param text_submission formData string false "Text answer"
// @Param files formData file false "Work files"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.SubmitRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	form, err := c.MultipartForm()
	if err != nil && err != http.ErrNotMultipart {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart payload"))
		return
	}
	var files []*multipart.FileHeader
	if form != nil {
		files = form.File["files"]
	}

	submission, err := h.service.Submit(c.Request.Context(), c.Param("id"), user.ID, req, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordSubmission()
	response.Created(c, submission)
}

// ListForAssignment godoc
// @Summary List submissions
// @Description List every submission of an assignment for its instructor
// @Tags Submissions
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/{id}/submissions [get]
func (h *SubmissionHandler) ListForAssignment(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	submissions, err := h.service.ListForAssignment(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// Grade godoc
// @Summary Grade submission
// @Description Record a grade and optional feedback
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body models.GradeRequest true "Grading payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /submissions/{id}/grade [put]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grading payload"))
		return
	}

	graded, err := h.service.Grade(c.Request.Context(), c.Param("id"), user.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, graded, nil)
}

// DownloadFile godoc
// @Summary Download submission file
// @Description Stream one stored submission file for an authorized caller
// @Tags Submissions
// @Produce octet-stream
// @Param id path string true "Submission ID"
// @Param path query string true "Stored file path"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /submissions/{id}/files [get]
func (h *SubmissionHandler) DownloadFile(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	storedPath := c.Query("path")
	if storedPath == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "path query parameter required"))
		return
	}

	file, meta, err := h.service.OpenFile(c.Request.Context(), c.Param("id"), storedPath, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	mimetype := meta.Mimetype
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+meta.Name+`"`)
	c.Header("Content-Type", mimetype)
	c.File(file.Name())
}

// GradebookCSV godoc
// @Summary Export gradebook
// @Description Export the gradebook of an assignment as CSV
// @Tags Submissions
// @Produce text/csv
// @Param id path string true "Assignment ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/{id}/gradebook [get]
func (h *SubmissionHandler) GradebookCSV(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	payload, filename, err := h.service.GradebookCSV(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", payload)
}
