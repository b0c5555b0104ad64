package models

import (
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by register and login. The refresh token travels
// in a cookie only.
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	Email       string `json:"email"`
}

type RefreshUser struct {
	Email string `json:"email"`
}

type RefreshResponse struct {
	Token string      `json:"token"`
	User  RefreshUser `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
