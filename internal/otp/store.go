package otp

import (
	"context"
	"time"
)

// Store persists passcode records.
//
// Replace must, as one atomic step, mark every unused record for rec.Phone as
// used and insert rec. Consume must select the newest unused record matching
// phone and digest and mark it used only when it has not expired at now; it
// reports whether a record was consumed.
type Store interface {
	Replace(ctx context.Context, rec Record) error
	Consume(ctx context.Context, phone string, digest []byte, now time.Time) (bool, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
