package models

import (
	"time"
)

// Admin is a console operator account. PasswordHash is a bcrypt digest and
// never serialized.
type Admin struct {
	ID           string    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// NewAdmin creates an admin account record
func NewAdmin(fullName, email, passwordHash string) *Admin {
	return &Admin{
		ID:           GenerateID("adm"),
		FullName:     fullName,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    GetCurrentTime(),
	}
}
