package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-lms-api/internal/handler"
	"github.com/noah-isme/campus-lms-api/internal/middleware"
	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/service"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/response"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth          *handler.AuthHandler
	Courses       *handler.CourseHandler
	Assignments   *handler.AssignmentHandler
	Submissions   *handler.SubmissionHandler
	Transcripts   *handler.TranscriptHandler
	Notifications *handler.NotificationHandler
	Payments      *handler.PaymentHandler
}

// Mount wires every route group onto the engine under the API prefix.
func Mount(r *gin.Engine, prefix string, auth *service.AuthService, metrics *service.MetricsService, h Handlers) {
	r.Use(middleware.Metrics(metrics))

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	}
	r.GET("/health", health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})

	api := r.Group(prefix)
	api.GET("/health", health)

	api.POST("/auth/login", h.Auth.Login)
	// The gateway redirects the payer here without credentials.
	api.GET("/payments/callback", h.Payments.Callback)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth))
	{
		authed.GET("/auth/me", h.Auth.Me)
		authed.POST("/auth/register", middleware.RequireRoles(models.RoleAdmin), h.Auth.Register)

		staff := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)
		teacher := middleware.RequireRoles(models.RoleTeacher)
		student := middleware.RequireRoles(models.RoleStudent)

		authed.GET("/courses", h.Courses.List)
		authed.POST("/courses", staff, h.Courses.Create)
		authed.GET("/courses/available", student, h.Courses.ListAvailable)
		authed.GET("/courses/teaching", teacher, h.Courses.MyCourses)
		authed.GET("/courses/:id", h.Courses.Get)
		authed.PUT("/courses/:id", staff, h.Courses.Update)
		authed.DELETE("/courses/:id", staff, h.Courses.Delete)
		authed.POST("/courses/:id/instructor", staff, h.Courses.AssignInstructor)
		authed.PUT("/courses/:id/instructor", staff, h.Courses.ReassignInstructor)
		authed.POST("/courses/:id/enroll", student, h.Courses.Enroll)

		authed.POST("/courses/:id/assignments", teacher, h.Assignments.Create)
		authed.GET("/courses/:id/assignments", h.Assignments.ListForCourse)
		authed.GET("/assignments/:id", h.Assignments.Get)
		authed.DELETE("/assignments/:id", teacher, h.Assignments.Delete)
		authed.GET("/assignments/:id/attachment", h.Assignments.DownloadAttachment)

		authed.POST("/assignments/:id/submissions", student, h.Submissions.Submit)
		authed.GET("/assignments/:id/submissions", teacher, h.Submissions.ListForAssignment)
		authed.GET("/assignments/:id/gradebook", teacher, h.Submissions.GradebookCSV)
		authed.PUT("/submissions/:id/grade", teacher, h.Submissions.Grade)
		authed.GET("/submissions/:id/files", h.Submissions.DownloadFile)

		authed.PUT("/courses/:id/students/:studentId/transcript", teacher, h.Transcripts.Upsert)
		authed.GET("/courses/:id/transcript", student, h.Transcripts.GetForCourse)
		authed.GET("/transcripts", student, h.Transcripts.ListMine)
		authed.GET("/transcripts/pdf", student, h.Transcripts.DownloadPDF)
		authed.GET("/students/:studentId/transcripts", staff, h.Transcripts.ListForStudent)
		authed.GET("/students/:studentId/transcript/pdf", staff, h.Transcripts.DownloadStudentPDF)

		authed.POST("/courses/:id/notifications", teacher, h.Notifications.Create)
		authed.GET("/notifications", student, h.Notifications.Feed)
		authed.PUT("/notifications/:id/read", student, h.Notifications.MarkRead)

		authed.POST("/payments/:txRef/verify", h.Payments.Verify)
	}
}
