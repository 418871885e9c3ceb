package models

import "time"

// User is a registered identity. Email is unique across all users.
type User struct {
	ID           string    `json:"id"         bson:"_id"`
	Email        string    `json:"email"      bson:"email"`
	PasswordHash string    `json:"-"          bson:"password_hash"` // never serialize
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token     string    `json:"token"`
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}
