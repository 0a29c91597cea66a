package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/service"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/response"
)

// TranscriptHandler wires HTTP endpoints to the transcript service.
type TranscriptHandler struct {
	service *service.TranscriptService
}

// NewTranscriptHandler creates a new handler.
func NewTranscriptHandler(svc *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{service: svc}
}

// Upsert godoc
// @Summary Write transcript
// @Description Recompute and store one student's transcript for a course
// @Tags Transcripts
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Param payload body models.UpsertTranscriptRequest true "Transcript payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/students/{studentId}/transcript [put]
func (h *TranscriptHandler) Upsert(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpsertTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transcript payload"))
		return
	}

	transcript, err := h.service.Upsert(c.Request.Context(), c.Param("id"), c.Param("studentId"), user.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// GetForCourse godoc
// @Summary Course transcript
// @Description Fetch the calling student's transcript for one course
// @Tags Transcripts
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/transcript [get]
func (h *TranscriptHandler) GetForCourse(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	transcript, err := h.service.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// ListMine godoc
// @Summary My transcripts
// @Description List the calling student's transcripts with the GPA rollup
// @Tags Transcripts
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /transcripts [get]
func (h *TranscriptHandler) ListMine(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	transcripts, summary, err := h.service.ListForStudent(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"transcripts": transcripts, "gpa": summary}, nil)
}

// ListForStudent godoc
// @Summary Student transcripts
// @Description List a named student's transcripts with the GPA rollup for staff
// @Tags Transcripts
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{studentId}/transcripts [get]
func (h *TranscriptHandler) ListForStudent(c *gin.Context) {
	transcripts, summary, err := h.service.ListForStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"transcripts": transcripts, "gpa": summary}, nil)
}

// DownloadPDF godoc
// @Summary Printable transcript
// @Description Render the calling student's transcript as PDF
// @Tags Transcripts
// @Produce application/pdf
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /transcripts/pdf [get]
func (h *TranscriptHandler) DownloadPDF(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	payload, filename, err := h.service.RenderPDF(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}

// DownloadStudentPDF godoc
// @Summary Student transcript PDF
// @Description Render a named student's transcript as PDF for staff
// @Tags Transcripts
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{studentId}/transcript/pdf [get]
func (h *TranscriptHandler) DownloadStudentPDF(c *gin.Context) {
	payload, filename, err := h.service.RenderPDF(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}
