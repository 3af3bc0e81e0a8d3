package models

import (
	"time"
)

// User is an email/password account. Its ID is the user_id every farmer
// profile is keyed on, so accounts must outlive the process.
type User struct {
	ID           string    `json:"id" bson:"_id" gorm:"primaryKey;size:64"`
	Email        string    `json:"email" bson:"email" gorm:"uniqueIndex;size:320;not null"`
	PasswordHash string    `json:"-" bson:"password_hash" gorm:"not null"`
	Name         string    `json:"name" bson:"name"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

func (User) TableName() string { return "accounts" }

// SessionUser is the identity behind an authenticated request.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a verified credential. Provider tells which session manager
// issued it so sign-out can be routed back to it.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) User() SessionUser {
	return SessionUser{ID: s.UserID, Email: s.Email}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (r *RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else {
		validateEmail(errors, r.Email)
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if len(r.Password) < 6 {
		errors["password"] = "Password must be at least 6 characters"
	}
	if r.Name == "" {
		errors["name"] = "Name is required"
	}

	return errors
}

func (r *LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}
