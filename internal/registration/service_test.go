package registration

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/edupath/onboarding/internal/apperr"
	"github.com/edupath/onboarding/internal/metrics"
	"github.com/edupath/onboarding/internal/notification"
	"github.com/edupath/onboarding/internal/otp"
	"github.com/edupath/onboarding/internal/profile"
	"github.com/edupath/onboarding/internal/staging"
)

const testPhone = "+15551234567"

type recordingSender struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, m notification.Message) (notification.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return notification.Receipt{}, r.err
	}
	r.sent = append(r.sent, m)
	return notification.Receipt{ProviderID: "SM1", Status: "queued"}, nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func (r *recordingSender) lastCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return ""
	}
	return codePattern.FindString(r.sent[len(r.sent)-1].Body)
}

type flakyProfiles struct {
	profile.Repository
	err error
}

func (f *flakyProfiles) Upsert(ctx context.Context, in profile.UpsertInput) (profile.Profile, error) {
	if f.err != nil {
		return profile.Profile{}, f.err
	}
	return f.Repository.Upsert(ctx, in)
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *clockwork.FakeClock
	store    *otp.MemoryStore
	cache    *staging.MemoryCache
	profiles *flakyProfiles
	sms      *recordingSender
	metrics  *metrics.Metrics
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	s.store = otp.NewMemoryStore()
	s.cache = staging.NewMemoryCache(s.clock)
	s.profiles = &flakyProfiles{Repository: profile.NewMemoryRepository()}
	s.sms = &recordingSender{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc = NewService(Deps{
		OTP:      otp.NewService(s.store, s.clock, otp.Config{TTL: 5 * time.Minute, Pepper: []byte("pepper")}),
		Staging:  s.cache,
		Profiles: s.profiles,
		SMS:      s.sms,
		Clock:    s.clock,
		Metrics:  s.metrics,
	}, Config{StagingTTL: 2 * time.Minute, OTPTTL: 5 * time.Minute})
}

func (s *ServiceSuite) initiate(name string) string {
	_, err := s.svc.Initiate(s.ctx, Input{Name: name, Email: "a@x.com", Phone: testPhone})
	s.Require().NoError(err)
	code := s.sms.lastCode()
	s.Require().Len(code, 6)
	return code
}

func (s *ServiceSuite) TestRoundTrip() {
	code := s.initiate("A")

	p, err := s.svc.Verify(s.ctx, testPhone, code)
	s.Require().NoError(err)
	s.Equal("A", p.Name)

	got, err := s.svc.GetProfile(s.ctx, testPhone)
	s.Require().NoError(err)
	s.Equal("A", got.Name)
	s.Equal("a@x.com", got.Email)
	s.Equal(testPhone, got.Phone)
	s.True(got.IsVerified)

	_, err = s.cache.Get(s.ctx, testPhone)
	s.ErrorIs(err, staging.ErrNotFound)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.RegistrationsCompleted))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.OTPVerifications.WithLabelValues(metrics.ResultSuccess)))
}

func (s *ServiceSuite) TestSMSBody() {
	s.initiate("A")
	s.Require().Equal(1, s.sms.count())
	msg := s.sms.sent[0]
	s.Equal(testPhone, msg.Destination)
	s.Equal(notification.KindOTP, msg.Kind)
	s.True(strings.HasPrefix(msg.Body, "Your verification code is: "))
	s.True(strings.HasSuffix(msg.Body, ". Valid for 5 minutes."))
}

func (s *ServiceSuite) TestInputIsNormalized() {
	_, err := s.svc.Initiate(s.ctx, Input{Name: "  A  ", Email: " A@X.com ", Phone: "+1 555-123 4567"})
	s.Require().NoError(err)

	reg, err := s.cache.Get(s.ctx, testPhone)
	s.Require().NoError(err)
	s.Equal("A", reg.Name)
	s.Equal("a@x.com", reg.Email)

	_, err = s.svc.Verify(s.ctx, "+1 555 123 4567", s.sms.lastCode())
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestReRegistrationUpdatesName() {
	code := s.initiate("A")
	_, err := s.svc.Verify(s.ctx, testPhone, code)
	s.Require().NoError(err)

	code = s.initiate("B")
	_, err = s.svc.Verify(s.ctx, testPhone, code)
	s.Require().NoError(err)

	got, err := s.svc.GetProfile(s.ctx, testPhone)
	s.Require().NoError(err)
	s.Equal("B", got.Name)
	s.Equal(1, profile.Count(s.profiles.Repository))
}

func (s *ServiceSuite) TestDoubleInitiateInvalidatesFirstCode() {
	first := s.initiate("A")
	second := s.initiate("A2")

	if first != second {
		_, err := s.svc.Verify(s.ctx, testPhone, first)
		s.True(apperr.Is(err, apperr.KindAuthentication), "got %v", err)
	}

	p, err := s.svc.Verify(s.ctx, testPhone, second)
	s.Require().NoError(err)
	s.Equal("A2", p.Name)
}

func (s *ServiceSuite) TestDoubleVerifyFails() {
	code := s.initiate("A")
	_, err := s.svc.Verify(s.ctx, testPhone, code)
	s.Require().NoError(err)

	_, err = s.svc.Verify(s.ctx, testPhone, code)
	s.True(apperr.Is(err, apperr.KindAuthentication))
}

func (s *ServiceSuite) TestStagingExpiredConsumesCode() {
	code := s.initiate("A")
	s.clock.Advance(3 * time.Minute)

	_, err := s.svc.Verify(s.ctx, testPhone, code)
	s.True(apperr.Is(err, apperr.KindState), "got %v", err)

	recs := s.store.Records(testPhone)
	s.Require().Len(recs, 1)
	s.True(recs[0].Used)

	_, err = s.svc.GetProfile(s.ctx, testPhone)
	s.True(apperr.Is(err, apperr.KindNotFound))
}

func (s *ServiceSuite) TestVerifyUnknownPhoneIsGeneric() {
	_, err := s.svc.Verify(s.ctx, "+15550000000", "123456")
	var appErr *apperr.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal(apperr.KindAuthentication, appErr.Kind)
	s.Equal(msgInvalidCode, appErr.Message)
}

func (s *ServiceSuite) TestMalformedPhoneSkipsOTPAndSMS() {
	_, err := s.svc.Initiate(s.ctx, Input{Name: "A", Email: "a@x.com", Phone: "abc"})
	var appErr *apperr.Error
	s.Require().ErrorAs(err, &appErr)
	s.Equal(apperr.KindValidation, appErr.Kind)
	s.Contains(appErr.Fields, "phone")

	s.Empty(s.store.Records("abc"))
	s.Zero(s.sms.count())
	s.Zero(testutil.ToFloat64(s.metrics.OTPIssued))
}

func (s *ServiceSuite) TestValidationReportsEveryField() {
	_, err := s.svc.Initiate(s.ctx, Input{Name: strings.Repeat("n", 256), Email: "nope", Phone: ""})
	var appErr *apperr.Error
	s.Require().ErrorAs(err, &appErr)
	s.Len(appErr.Fields, 3)
}

func (s *ServiceSuite) TestVerifyRejectsMalformedCode() {
	_, err := s.svc.Verify(s.ctx, testPhone, "12a456")
	s.True(apperr.Is(err, apperr.KindValidation))
}

func (s *ServiceSuite) TestSMSFailureKeepsStagedData() {
	s.sms.err = errors.New("twilio down")

	_, err := s.svc.Initiate(s.ctx, Input{Name: "A", Email: "a@x.com", Phone: testPhone})
	s.True(apperr.Is(err, apperr.KindTransport))

	_, err = s.cache.Get(s.ctx, testPhone)
	s.NoError(err)
	s.Len(s.store.Records(testPhone), 1)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.SMSFailures))
}

func (s *ServiceSuite) TestProfileWriteFailureKeepsStagedEntry() {
	code := s.initiate("A")
	s.profiles.err = errors.New("db down")

	_, err := s.svc.Verify(s.ctx, testPhone, code)
	s.True(apperr.Is(err, apperr.KindInternal), "got %v", err)

	_, err = s.cache.Get(s.ctx, testPhone)
	s.NoError(err, "staged entry must survive a failed profile write")

	s.profiles.err = nil
	_, err = s.svc.Verify(s.ctx, testPhone, code)
	s.True(apperr.Is(err, apperr.KindAuthentication), "code was consumed by the first attempt")
}

func (s *ServiceSuite) TestProfileConflictMapsToConflict() {
	code := s.initiate("A")
	s.profiles.err = profile.ErrConflict

	_, err := s.svc.Verify(s.ctx, testPhone, code)
	s.True(apperr.Is(err, apperr.KindConflict))
}

func (s *ServiceSuite) TestTestModeEchoesCode() {
	s.svc.cfg.TestMode = true
	res, err := s.svc.Initiate(s.ctx, Input{Name: "A", Email: "a@x.com", Phone: testPhone})
	s.Require().NoError(err)
	s.Equal(s.sms.lastCode(), res.Code)
}

func (s *ServiceSuite) TestCodeIsHiddenOutsideTestMode() {
	res, err := s.svc.Initiate(s.ctx, Input{Name: "A", Email: "a@x.com", Phone: testPhone})
	s.Require().NoError(err)
	s.Empty(res.Code)
	s.Equal(testPhone, res.Phone)
}

func TestTTLMinutes(t *testing.T) {
	cases := map[time.Duration]int{
		5 * time.Minute:  5,
		90 * time.Second: 2,
		10 * time.Second: 1,
	}
	for ttl, want := range cases {
		if got := ttlMinutes(ttl); got != want {
			t.Fatalf("ttlMinutes(%s) = %d, want %d", ttl, got, want)
		}
	}
}

func TestZeroConfigStagesWithDefaultTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clock := clockwork.NewFakeClock()
	sms := &recordingSender{}
	svc := NewService(Deps{
		OTP:      otp.NewService(otp.NewMemoryStore(), clock, otp.Config{TTL: 5 * time.Minute}),
		Staging:  staging.NewRedisCache(client),
		Profiles: profile.NewMemoryRepository(),
		SMS:      sms,
		Clock:    clock,
	}, Config{})

	_, err := svc.Initiate(context.Background(), Input{Name: "A", Email: "a@x.com", Phone: testPhone})
	require.NoError(t, err)

	key := "registration:v1:" + testPhone
	assert.Equal(t, DefaultStagingTTL, mr.TTL(key))

	mr.FastForward(DefaultStagingTTL)
	assert.False(t, mr.Exists(key), "staged entry must expire")
}

func TestZeroConfigMemoryCacheKeepsEntryUntilVerify(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sms := &recordingSender{}
	svc := NewService(Deps{
		OTP:      otp.NewService(otp.NewMemoryStore(), clock, otp.Config{TTL: 5 * time.Minute}),
		Staging:  staging.NewMemoryCache(clock),
		Profiles: profile.NewMemoryRepository(),
		SMS:      sms,
		Clock:    clock,
	}, Config{})

	ctx := context.Background()
	_, err := svc.Initiate(ctx, Input{Name: "A", Email: "a@x.com", Phone: testPhone})
	require.NoError(t, err)

	p, err := svc.Verify(ctx, testPhone, sms.lastCode())
	require.NoError(t, err)
	assert.Equal(t, "A", p.Name)
}
