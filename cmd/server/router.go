package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/filevault/internal/apperr"
	"github.com/filevault/internal/middleware"
	"github.com/filevault/internal/storage"
)

func newRouter(a *app) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.CORSMiddleware(a.cfg.Server.CORSOrigins))

	router.MaxMultipartMemory = 32 << 20

	// Health check
	router.GET("/health", handleHealth(a))

	if local, ok := a.store.(*storage.LocalGateway); ok {
		router.Static("/blobs", local.Root())
	}

	api := router.Group(a.cfg.Server.APIPrefix)
	requireAuth := middleware.AuthMiddleware(a.auth)
	throttle := middleware.RateLimitMiddleware(a.limiter, a.logger)

	cookies := cookieSettings{
		name:   a.cfg.Auth.CookieName,
		path:   a.cfg.Server.APIPrefix + "/auth",
		secure: a.cfg.Auth.CookieSecure,
		maxAge: int(a.auth.Tokens().RefreshExpiry() / time.Second),
	}

	// Auth routes
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", throttle, handleRegister(a.auth, cookies))
		authGroup.POST("/login", throttle, handleLogin(a.auth, cookies))
		authGroup.GET("/refresh-token", throttle, handleRefresh(a.auth, cookies))
		authGroup.GET("/refresh", throttle, handleRefresh(a.auth, cookies))
		authGroup.POST("/logout", handleLogout(cookies))
		authGroup.GET("/me", requireAuth, handleGetMe(a.auth))
	}

	// File routes
	fileGroup := api.Group("/files")
	fileGroup.Use(requireAuth)
	{
		fileGroup.POST("/upload", handleUpload(a.files, uploadBodyLimit(a.cfg.Server.MaxUploadFiles, a.cfg.Server.MaxUploadSize)))
		fileGroup.GET("", handleListFiles(a.files))
		fileGroup.PUT("/:id", handleMoveFile(a.files))
		fileGroup.DELETE("/:id", handleDeleteFile(a.files))
	}

	// Folder routes
	folderGroup := api.Group("/folders")
	folderGroup.Use(requireAuth)
	{
		folderGroup.POST("", handleCreateFolder(a.folders))
		folderGroup.GET("", handleListFolders(a.folders))
		folderGroup.GET("/:folderId", handleGetFolder(a.folders))
		folderGroup.GET("/:folderId/path", handleFolderPath(a.folders))
		folderGroup.PUT("/:folderId", handleUpdateFolder(a.folders))
		folderGroup.DELETE("/:folderId", handleDeleteFolder(a.folders))
	}

	return router
}

func handleHealth(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"time":   time.Now().Unix(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	}
}

// respondError writes the JSON error body for err. Server-side failures are
// attached to the context so the request log carries the cause.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"message": apperr.PublicMessage(err)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}

// bindJSON binds the body into req and answers 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, bindingMessage(err))
		return false
	}
	return true
}

// 针对个别字段覆盖默认提示
var bindingMessages = map[string]string{
	"CreateFolderRequest.Name.required": "Folder name is required",
}

// bindingMessage turns the first failed binding rule into a client message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}

	fe := verrs[0]
	if msg, ok := bindingMessages[fe.StructNamespace()+"."+fe.Tag()]; ok {
		return msg
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
