package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sankhya-academy/exam-backend/internal/model"
)

// StaffRepository handles staff data access.
type StaffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository creates a new StaffRepository.
func NewStaffRepository(pool *pgxpool.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

// GetByEmail retrieves a staff member by email for login.
func (r *StaffRepository) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	s := &model.Staff{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM staff WHERE email = $1`, email,
	).Scan(&s.ID, &s.Name, &s.Email, &s.PasswordHash, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new staff member.
func (r *StaffRepository) Create(ctx context.Context, s *model.Staff) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO staff (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		s.Name, s.Email, s.PasswordHash,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}
