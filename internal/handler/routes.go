package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/client-portal-api/internal/middleware"
	"github.com/noah-isme/client-portal-api/internal/policy"
)

// Handlers groups every HTTP handler of the portal.
type Handlers struct {
	Auth     *AuthHandler
	Profiles *ProfileHandler
	Clients  *ClientHandler
	Files    *FileHandler
	Messages *MessageHandler
	News     *NewsHandler
	Admin    *AdminHandler
	Stream   *StreamHandler
}

// Register mounts the portal API on group. identify resolves the caller on protected routes.
func Register(group *gin.RouterGroup, h Handlers, identify gin.HandlerFunc) {
	can := middleware.RequirePermission

	auth := group.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)
	auth.GET("/session", h.Auth.Session)
	auth.POST("/password", identify, h.Auth.ChangePassword)

	// the signed token authorizes the download
	group.GET("/files/blob", h.Files.Blob)

	secured := group.Group("")
	secured.Use(identify)

	secured.GET("/me", h.Profiles.Me)
	secured.PATCH("/me", h.Profiles.UpdateMe)
	secured.GET("/me/permissions", h.Profiles.Permissions)

	profiles := secured.Group("/profiles", can(policy.ManageUsers))
	profiles.GET("", h.Profiles.List)
	profiles.POST("", h.Profiles.Create)
	profiles.GET("/:id", h.Profiles.Get)
	profiles.PATCH("/:id", h.Profiles.Update)
	profiles.DELETE("/:id", h.Profiles.Delete)

	own := secured.Group("/clients/me", can(policy.ManageOwnUsers))
	own.GET("/users", h.Profiles.ClientUsers)
	own.POST("/users", h.Profiles.CreateClientUser)
	own.PATCH("/users/:id", h.Profiles.Update)

	clients := secured.Group("/clients", can(policy.ManageClients))
	clients.GET("", h.Clients.List)
	clients.POST("", h.Clients.Create)
	clients.GET("/:id", h.Clients.Get)
	clients.PATCH("/:id", h.Clients.Update)
	clients.DELETE("/:id", h.Clients.Delete)

	files := secured.Group("/files")
	files.GET("", h.Files.List)
	files.POST("", can(policy.UploadFiles), h.Files.Upload)
	files.POST("/bulk-assign", can(policy.AssignFiles), h.Files.BulkAssign)
	files.GET("/:id", h.Files.Get)
	files.DELETE("/:id", h.Files.Delete)
	files.GET("/:id/url", h.Files.AccessURL)
	files.GET("/:id/stats", h.Files.Stats)
	files.GET("/:id/assignments", h.Files.Assignments)
	files.POST("/:id/assignments", can(policy.AssignFiles), h.Files.Assign)
	files.DELETE("/:id/assignments/:assignmentID", h.Files.Unassign)

	messages := secured.Group("/messages")
	messages.GET("", h.Messages.List)
	messages.POST("", h.Messages.Send)
	messages.GET("/unread-count", h.Messages.UnreadCount)
	messages.GET("/peers", h.Profiles.Peers)
	messages.POST("/broadcast", can(policy.BroadcastToOwnClient), h.Messages.Broadcast)
	messages.GET("/:id", h.Messages.Get)
	messages.POST("/:id/read", h.Messages.MarkRead)
	messages.DELETE("/:id", h.Messages.Delete)

	news := secured.Group("/news")
	news.GET("", h.News.List)
	news.GET("/:id", h.News.Get)
	manage := news.Group("", can(policy.ManageNews))
	manage.POST("", h.News.Create)
	manage.PATCH("/:id", h.News.Update)
	manage.DELETE("/:id", h.News.Delete)
	manage.GET("/:id/assignments", h.News.Assignments)
	manage.POST("/:id/assignments", h.News.Assign)
	manage.DELETE("/:id/assignments/:assignmentID", h.News.Unassign)

	admin := secured.Group("/admin")
	admin.GET("/stats", can(policy.ViewSystemStats), h.Admin.Stats)
	admin.GET("/errors", can(policy.ViewErrorLog), h.Admin.Errors)
	admin.GET("/reports/file-access", can(policy.ExportAccessReports), h.Admin.FileAccessReport)

	if h.Stream != nil {
		secured.GET("/stream/:topic", h.Stream.Stream)
	}
}
