package otp

import "time"

// Record is one issued passcode. The plaintext code is never stored; CodeDigest
// is a keyed hash of phone and code.
type Record struct {
	ID         string
	Phone      string
	CodeDigest []byte
	ExpiresAt  time.Time
	Used       bool
	CreatedAt  time.Time
}

// Active reports whether the record can still be consumed at now.
func (r Record) Active(now time.Time) bool {
	return !r.Used && r.ExpiresAt.After(now)
}
