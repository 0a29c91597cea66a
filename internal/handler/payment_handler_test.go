package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/campus-lms-api/internal/middleware"
	"github.com/noah-isme/campus-lms-api/internal/models"
)

func studentPrincipal() *models.User {
	return &models.User{ID: "s1", Username: "jdoe", Role: models.RoleStudent}
}

func TestCallbackRequiresTransactionReference(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPaymentHandler(nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/payments/callback", nil)

	h.Callback(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadFileRequiresPathQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSubmissionHandler(nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/submissions/sub-1/files", nil)
	c.Set(middleware.ContextUserKey, studentPrincipal())

	h.DownloadFile(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
