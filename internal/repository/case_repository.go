package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jkindrix/scamshield/internal/domain"
)

// CaseRepository implements domain.CaseStore using PostgreSQL.
type CaseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository creates a new CaseRepository.
func NewCaseRepository(pool *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{pool: pool}
}

// CreateCase inserts a case registration.
func (r *CaseRepository) CreateCase(ctx context.Context, c domain.Case) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO cases (slug, phone_number, token_hash, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.pool.Exec(ctx, query, c.Slug, c.PhoneNumber, c.TokenHash, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

// GetCase fetches a case by slug, or nil when unknown.
func (r *CaseRepository) GetCase(ctx context.Context, slug string) (*domain.Case, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT slug, phone_number, token_hash, created_at
		FROM cases
		WHERE slug = $1`

	var c domain.Case
	err := r.pool.QueryRow(ctx, query, slug).Scan(&c.Slug, &c.PhoneNumber, &c.TokenHash, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query case: %w", err)
	}
	return &c, nil
}

// SetPhone stores the protected phone number for a case.
func (r *CaseRepository) SetPhone(ctx context.Context, slug, phoneNumber string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE cases SET phone_number = $2 WHERE slug = $1`
	tag, err := r.pool.Exec(ctx, query, slug, phoneNumber)
	if err != nil {
		return fmt.Errorf("failed to update case phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
