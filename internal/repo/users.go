package repo

import (
	"context"

	"github.com/rawises/storefront-api/internal/auth"
)

// Users implements auth.Users. A duplicate e-mail surfaces as the pgconn
// unique violation (23505) from users_email_key.
type Users struct {
	db dbtx
}

var _ auth.Users = (*Users)(nil)

func (r *Users) CreateUser(ctx context.Context, u auth.User, passwordHash string) (auth.User, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO users (name, email, phone, role, password_hash)
		VALUES ($1, $2, $3, $4, $5) RETURNING id::text, created_at`,
		u.Name, u.Email, u.Phone, u.Role, passwordHash).Scan(&u.ID, &u.CreatedAt)
	return u, err
}

func (r *Users) GetUserByEmail(ctx context.Context, email string) (auth.Credentials, error) {
	var c auth.Credentials
	err := r.db.QueryRow(ctx, `SELECT id::text, name, email, phone, role, created_at, password_hash
		FROM users WHERE lower(email) = lower($1)`, email).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Role, &c.CreatedAt, &c.PasswordHash)
	return c, err
}

func (r *Users) GetUserByID(ctx context.Context, id string) (auth.User, error) {
	var u auth.User
	err := r.db.QueryRow(ctx, `SELECT id::text, name, email, phone, role, created_at
		FROM users WHERE id::text = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CreatedAt)
	return u, err
}

// UpsertAdmin creates or promotes an admin account, used by the seeder.
func (r *Users) UpsertAdmin(ctx context.Context, name, email, passwordHash string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (name, email, role, password_hash) VALUES ($1, $2, $3, $4)
		ON CONFLICT (lower(email)) DO UPDATE SET role = EXCLUDED.role, password_hash = EXCLUDED.password_hash`,
		name, email, auth.RoleAdmin, passwordHash)
	return err
}
