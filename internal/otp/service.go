package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/blake2b"
)

// CodeLength is the number of digits in a passcode.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// Config carries the passcode policy.
type Config struct {
	TTL    time.Duration
	Pepper []byte
}

// Service issues and verifies passcodes against a Store.
type Service struct {
	store  Store
	clock  clockwork.Clock
	ttl    time.Duration
	key    []byte
	random io.Reader
}

// NewService creates a passcode service. A nil clock uses the system clock.
func NewService(store Store, clock clockwork.Clock, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	key := cfg.Pepper
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Service{store: store, clock: clock, ttl: cfg.TTL, key: key, random: rand.Reader}
}

// TTL returns the default passcode lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue invalidates outstanding codes for phone and returns a fresh one valid for the configured TTL.
func (s *Service) Issue(ctx context.Context, phone string) (string, error) {
	return s.IssueWithTTL(ctx, phone, s.ttl)
}

// IssueWithTTL is Issue with an explicit lifetime.
func (s *Service) IssueWithTTL(ctx context.Context, phone string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("otp ttl must be positive")
	}
	code, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	now := s.clock.Now().UTC()
	rec := Record{
		ID:         uuid.NewString(),
		Phone:      phone,
		CodeDigest: s.digest(phone, code),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	if err := s.store.Replace(ctx, rec); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify consumes the code if it is the live, unused code for phone. It
// returns false without distinguishing wrong, used, expired or never-issued
// codes. Only storage failures produce an error.
func (s *Service) Verify(ctx context.Context, phone, code string) (bool, error) {
	if !wellFormed(code) {
		return false, nil
	}
	ok, err := s.store.Consume(ctx, phone, s.digest(phone, code), s.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return ok, nil
}

// Purge removes records that expired more than olderThan ago.
func (s *Service) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.store.PurgeExpired(ctx, s.clock.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge otps: %w", err)
	}
	return n, nil
}

func (s *Service) generate() (string, error) {
	n, err := rand.Int(s.random, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

func (s *Service) digest(phone, code string) []byte {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// key length is bounded in NewService
		panic(err)
	}
	h.Write([]byte(phone))
	h.Write([]byte{0})
	h.Write([]byte(code))
	return h.Sum(nil)
}

func wellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
