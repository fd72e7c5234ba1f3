package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-portal-api/internal/middleware"
	"github.com/noah-isme/journal-portal-api/internal/models"
)

// Routes groups the handlers mounted under the API prefix.
type Routes struct {
	Auth        *AuthHandler
	Submissions *SubmissionHandler
	Copyright   *CopyrightHandler
	Ops         *MetricsHandler
	Tokens      middleware.TokenValidator
	Audit       middleware.AuditWriter
	Logger      *zap.Logger
}

// Register mounts every API route on api.
func (r Routes) Register(api gin.IRouter) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	author := middleware.RequireRoles(models.RoleAuthor)
	reviewer := middleware.RequireRoles(models.RoleEditor, models.RoleConferenceEditor)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleEditor, models.RoleConferenceEditor, models.RoleAuthor)

	auth := api.Group("/auth")
	auth.POST("/login", r.Auth.Login)
	auth.POST("/refresh", r.Auth.Refresh)
	auth.GET("/me", middleware.JWT(r.Tokens), r.Auth.Me)

	api.GET("/files/download",
		middleware.Audit(r.Audit, r.Logger, models.AuditActionFileDownload, models.AuditResourceFile, ""),
		r.Copyright.Download,
	)

	secured := api.Group("")
	secured.Use(middleware.JWT(r.Tokens))

	secured.GET("/journals", r.Copyright.Journals)
	secured.GET("/reviewers", admin, r.Submissions.Reviewers)
	if r.Ops != nil {
		secured.GET("/system/metrics", admin, r.Ops.Summary)
	}

	groups := secured.Group("/groups/:groupId")
	groups.GET("/submissions", staff, r.Submissions.ListByGroup)
	groups.GET("/submissions/export", admin, r.Submissions.Export)

	subs := secured.Group("/submissions")
	subs.POST("", author, r.Submissions.Create)
	subs.GET("/:id", r.Submissions.Get)
	subs.GET("/:id/timeline", r.Submissions.Timeline)
	subs.POST("/:id/assign-editor", admin, r.Submissions.AssignEditor)
	subs.POST("/:id/assign-conference-editor", admin, r.Submissions.AssignConferenceEditor)
	subs.POST("/:id/review", reviewer, r.Submissions.Review)
	subs.POST("/:id/final-decision", admin, r.Submissions.FinalDecision)

	copyright := secured.Group("/copyright")
	copyright.GET("/template", r.Copyright.ActiveTemplate)
	copyright.POST("/templates", admin, r.Copyright.PublishTemplate)
	copyright.GET("/templates/:version", r.Copyright.TemplateVersion)
	copyright.POST("/preview", author, r.Copyright.Preview)
	copyright.GET("/:submissionId", r.Copyright.Get)
	copyright.POST("/:submissionId", author, r.Copyright.Submit)
	copyright.GET("/:submissionId/pdf", r.Copyright.PDF)
	copyright.GET("/:submissionId/manuscript", r.Copyright.ManuscriptLink)
	copyright.POST("/:submissionId/manuscript", author, r.Copyright.UploadManuscript)
}
