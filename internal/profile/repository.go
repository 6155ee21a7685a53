package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no verified profile exists for a phone.
	ErrNotFound = errors.New("profile not found")
	// ErrConflict signals a phone uniqueness violation that the upsert did not absorb.
	ErrConflict = errors.New("profile conflict")
)

const uniqueViolation = "23505"

// Repository persists verified profiles.
type Repository interface {
	Upsert(ctx context.Context, in UpsertInput) (Profile, error)
	GetVerifiedByPhone(ctx context.Context, phone string) (Profile, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed profile repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts or updates the profile for in.Phone in a single statement
// and always leaves it verified.
func (r *PostgresRepository) Upsert(ctx context.Context, in UpsertInput) (Profile, error) {
	const query = `
        INSERT INTO student_profiles (id, name, email, phone, is_verified, created_at, updated_at)
        VALUES ($1, $2, $3, $4, TRUE, $5, $5)
        ON CONFLICT (phone) DO UPDATE
            SET name = EXCLUDED.name,
                email = EXCLUDED.email,
                is_verified = TRUE,
                updated_at = EXCLUDED.updated_at
        RETURNING id, name, email, phone, is_verified, created_at, updated_at`
	row := r.db.QueryRow(ctx, query, uuid.New(), in.Name, in.Email, in.Phone, in.At.UTC())
	p, err := scanProfile(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Profile{}, fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrConflict)
		}
		return Profile{}, err
	}
	return p, nil
}

// GetVerifiedByPhone fetches a verified profile by phone number.
func (r *PostgresRepository) GetVerifiedByPhone(ctx context.Context, phone string) (Profile, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, email, phone, is_verified, created_at, updated_at
        FROM student_profiles WHERE phone = $1 AND is_verified = TRUE`, phone)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		id                   uuid.UUID
		createdAt, updatedAt time.Time
		p                    Profile
	)
	if err := row.Scan(&id, &p.Name, &p.Email, &p.Phone, &p.IsVerified, &createdAt, &updatedAt); err != nil {
		return Profile{}, err
	}
	p.ID = id.String()
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}
