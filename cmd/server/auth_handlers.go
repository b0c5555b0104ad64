package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filevault/internal/auth"
	"github.com/filevault/internal/middleware"
	"github.com/filevault/internal/models"
)

type cookieSettings struct {
	name   string
	path   string
	secure bool
	maxAge int
}

func (s cookieSettings) set(c *gin.Context, value string) {
	c.SetSameSite(s.sameSite())
	c.SetCookie(s.name, value, s.maxAge, s.path, "", s.secure, true)
}

func (s cookieSettings) clear(c *gin.Context) {
	c.SetSameSite(s.sameSite())
	c.SetCookie(s.name, "", -1, s.path, "", s.secure, true)
}

// 跨站请求携带 cookie 需要 SameSite=None，且必须配合 Secure
func (s cookieSettings) sameSite() http.SameSite {
	if s.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// handleRegister 处理用户注册
func handleRegister(authService *auth.Service, cookies cookieSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RegisterRequest
		if !bindJSON(c, &req) {
			return
		}

		session, err := authService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}

		cookies.set(c, session.Tokens.RefreshToken)
		c.JSON(http.StatusCreated, models.AuthResponse{
			AccessToken: session.Tokens.AccessToken,
			Email:       session.User.Email,
		})
	}
}

// handleLogin 处理用户登录
func handleLogin(authService *auth.Service, cookies cookieSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if !bindJSON(c, &req) {
			return
		}

		session, err := authService.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}

		cookies.set(c, session.Tokens.RefreshToken)
		c.JSON(http.StatusOK, models.AuthResponse{
			AccessToken: session.Tokens.AccessToken,
			Email:       session.User.Email,
		})
	}
}

// handleRefresh mints a new access token from the refresh cookie.
func handleRefresh(authService *auth.Service, cookies cookieSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(cookies.name)

		access, user, err := authService.Refresh(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.RefreshResponse{
			Token: access,
			User:  models.RefreshUser{Email: user.Email},
		})
	}
}

func handleLogout(cookies cookieSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookies.clear(c)
		c.JSON(http.StatusOK, models.MessageResponse{Message: "Logged out successfully"})
	}
}

// handleGetMe 获取当前用户信息
func handleGetMe(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authService.GetUser(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
