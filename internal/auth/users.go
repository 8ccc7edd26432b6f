package auth

import (
	"context"
	"time"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User represents a safe subset of the user model returned to clients.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Credentials is a user row together with its password hash.
type Credentials struct {
	User
	PasswordHash string
}

// Users persists accounts. Missing rows are reported as pgx.ErrNoRows and a
// duplicate e-mail as a unique violation (SQLSTATE 23505).
type Users interface {
	CreateUser(ctx context.Context, u User, passwordHash string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (Credentials, error)
	GetUserByID(ctx context.Context, id string) (User, error)
}
