package otp

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testPhone = "+15551234567"

type ServiceSuite struct {
	suite.Suite
	ctx   context.Context
	clock *clockwork.FakeClock
	store *MemoryStore
	svc   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClockAt(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	s.store = NewMemoryStore()
	s.svc = NewService(s.store, s.clock, Config{TTL: 5 * time.Minute, Pepper: []byte("pepper")})
}

func (s *ServiceSuite) activeCount(phone string) int {
	n := 0
	for _, rec := range s.store.Records(phone) {
		if rec.Active(s.clock.Now()) {
			n++
		}
	}
	return n
}

func (s *ServiceSuite) TestIssueProducesSixDigitCode() {
	code, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)
	s.Regexp(regexp.MustCompile(`^\d{6}$`), code)

	recs := s.store.Records(testPhone)
	s.Require().Len(recs, 1)
	s.False(recs[0].Used)
	s.True(s.clock.Now().Add(5 * time.Minute).Equal(recs[0].ExpiresAt))
	s.NotContains(string(recs[0].CodeDigest), code)
}

func (s *ServiceSuite) TestReissueInvalidatesPreviousCode() {
	first, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)
	second, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)

	s.Equal(1, s.activeCount(testPhone))

	if first != second {
		ok, err := s.svc.Verify(s.ctx, testPhone, first)
		s.Require().NoError(err)
		s.False(ok, "first code must be invalidated by reissue")
	}

	ok, err := s.svc.Verify(s.ctx, testPhone, second)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestVerifyIsSingleUse() {
	code, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)

	ok, err := s.svc.Verify(s.ctx, testPhone, code)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.svc.Verify(s.ctx, testPhone, code)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestVerifyExpiredLeavesRecordUnused() {
	code, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)

	s.clock.Advance(5 * time.Minute)

	ok, err := s.svc.Verify(s.ctx, testPhone, code)
	s.Require().NoError(err)
	s.False(ok, "expiresAt == now is expired")

	recs := s.store.Records(testPhone)
	s.Require().Len(recs, 1)
	s.False(recs[0].Used)
}

func (s *ServiceSuite) TestVerifyJustBeforeExpiry() {
	code, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)

	s.clock.Advance(5*time.Minute - time.Second)

	ok, err := s.svc.Verify(s.ctx, testPhone, code)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestVerifyUnknownPhoneAndWrongCode() {
	ok, err := s.svc.Verify(s.ctx, "+15550000000", "123456")
	s.Require().NoError(err)
	s.False(ok)

	code, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	ok, err = s.svc.Verify(s.ctx, testPhone, wrong)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.svc.Verify(s.ctx, testPhone, "12ab56")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestCodeIsBoundToPhone() {
	code, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)

	ok, err := s.svc.Verify(s.ctx, "+15559999999", code)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestPurgeRemovesOldRecords() {
	_, err := s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)
	s.clock.Advance(2 * time.Hour)
	_, err = s.svc.Issue(s.ctx, testPhone)
	s.Require().NoError(err)

	n, err := s.svc.Purge(s.ctx, time.Hour)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	s.Len(s.store.Records(testPhone), 1)
}

func TestIssueWithTTLRejectsNonPositive(t *testing.T) {
	svc := NewService(NewMemoryStore(), clockwork.NewFakeClock(), Config{TTL: time.Minute})
	_, err := svc.IssueWithTTL(context.Background(), testPhone, 0)
	require.Error(t, err)
}

func TestGeneratePreservesLeadingZeros(t *testing.T) {
	svc := NewService(NewMemoryStore(), clockwork.NewFakeClock(), Config{TTL: time.Minute})
	svc.random = bytes.NewReader(make([]byte, 64))
	code, err := svc.generate()
	require.NoError(t, err)
	assert.Equal(t, "000000", code)
}

func TestConcurrentIssueLeavesOneActiveCode(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore()
	svc := NewService(store, clock, Config{TTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(context.Background(), testPhone)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active := 0
	for _, rec := range store.Records(testPhone) {
		if rec.Active(clock.Now()) {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

type failingStore struct{ MemoryStore }

var errStoreDown = errors.New("store down")

func (f *failingStore) Replace(context.Context, Record) error { return errStoreDown }

func (f *failingStore) Consume(context.Context, string, []byte, time.Time) (bool, error) {
	return false, errStoreDown
}

func TestStorageErrorsPropagate(t *testing.T) {
	svc := NewService(&failingStore{}, clockwork.NewFakeClock(), Config{TTL: time.Minute})

	_, err := svc.Issue(context.Background(), testPhone)
	require.ErrorIs(t, err, errStoreDown)

	_, err = svc.Verify(context.Background(), testPhone, "123456")
	require.ErrorIs(t, err, errStoreDown)
}

func TestLongPepperIsAccepted(t *testing.T) {
	svc := NewService(NewMemoryStore(), clockwork.NewFakeClock(), Config{TTL: time.Minute, Pepper: bytes.Repeat([]byte("p"), 200)})
	code, err := svc.Issue(context.Background(), testPhone)
	require.NoError(t, err)
	ok, err := svc.Verify(context.Background(), testPhone, code)
	require.NoError(t, err)
	assert.True(t, ok)
}
