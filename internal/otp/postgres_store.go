package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists passcodes in the phone_otps table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed passcode store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Replace invalidates outstanding codes for the phone and inserts rec in one
// transaction. The advisory lock serializes concurrent issues for a phone so
// the partial unique index never trips on a well-formed race.
func (s *PostgresStore) Replace(ctx context.Context, rec Record) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("parse otp id: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.Phone); err != nil {
		return fmt.Errorf("lock phone: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE phone_otps SET is_used = TRUE WHERE phone = $1 AND is_used = FALSE`, rec.Phone); err != nil {
		return fmt.Errorf("invalidate otps: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO phone_otps (id, phone, code_digest, expires_at, is_used, created_at)
        VALUES ($1, $2, $3, $4, FALSE, $5)`, id, rec.Phone, rec.CodeDigest, rec.ExpiresAt.UTC(), rec.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}

	return tx.Commit(ctx)
}

// Consume marks the newest matching unused record as used when it is still
// live. An expired match is left untouched.
func (s *PostgresStore) Consume(ctx context.Context, phone string, digest []byte, now time.Time) (bool, error) {
	const query = `
        UPDATE phone_otps SET is_used = TRUE
        WHERE id = (
            SELECT id FROM phone_otps
            WHERE phone = $1 AND code_digest = $2 AND is_used = FALSE
            ORDER BY created_at DESC
            LIMIT 1
            FOR UPDATE
        ) AND expires_at > $3`
	cmd, err := s.db.Exec(ctx, query, phone, digest, now.UTC())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// PurgeExpired deletes records that expired before the cutoff.
func (s *PostgresStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM phone_otps WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
