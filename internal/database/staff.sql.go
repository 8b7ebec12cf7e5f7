package database

import (
	"context"

	"github.com/google/uuid"
)

const getStaffByEmail = `SELECT id, email, hashed_password, full_name, role, is_active, created_at
FROM staff WHERE email = $1 AND is_active`

func (q *Queries) GetStaffByEmail(ctx context.Context, email string) (Staff, error) {
	row := q.db.QueryRow(ctx, getStaffByEmail, email)
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.HashedPassword,
		&i.FullName,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const getStaffByID = `SELECT id, email, hashed_password, full_name, role, is_active, created_at
FROM staff WHERE id = $1 AND is_active`

func (q *Queries) GetStaffByID(ctx context.Context, id uuid.UUID) (Staff, error) {
	row := q.db.QueryRow(ctx, getStaffByID, id)
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.HashedPassword,
		&i.FullName,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const createStaff = `INSERT INTO staff (email, hashed_password, full_name, role)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET hashed_password = EXCLUDED.hashed_password
RETURNING id, email, hashed_password, full_name, role, is_active, created_at`

type CreateStaffParams struct {
	Email          string `json:"email"`
	HashedPassword string `json:"hashed_password"`
	FullName       string `json:"full_name"`
	Role           string `json:"role"`
}

func (q *Queries) CreateStaff(ctx context.Context, arg CreateStaffParams) (Staff, error) {
	row := q.db.QueryRow(ctx, createStaff,
		arg.Email,
		arg.HashedPassword,
		arg.FullName,
		arg.Role,
	)
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.HashedPassword,
		&i.FullName,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}
