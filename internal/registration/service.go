// Package registration runs the two-phase sign-up protocol: stage the
// submitted profile and send a passcode, then verify the passcode and
// commit the staged data as a verified profile.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edupath/onboarding/internal/apperr"
	"github.com/edupath/onboarding/internal/logging"
	"github.com/edupath/onboarding/internal/metrics"
	"github.com/edupath/onboarding/internal/notification"
	"github.com/edupath/onboarding/internal/otp"
	"github.com/edupath/onboarding/internal/phone"
	"github.com/edupath/onboarding/internal/profile"
	"github.com/edupath/onboarding/internal/staging"
)

const (
	maxNameLength = 255

	// DefaultStagingTTL applies when Config.StagingTTL is not positive.
	DefaultStagingTTL = 5 * time.Minute

	msgInvalidCode    = "invalid or expired code"
	msgSessionExpired = "session expired, restart registration"
)

const tracerName = "github.com/edupath/onboarding/internal/registration"

// Deps are the collaborators of the orchestrator. Clock, Logger, Metrics and
// Tracer are optional.
type Deps struct {
	OTP      *otp.Service
	Staging  staging.Cache
	Profiles profile.Repository
	SMS      notification.Sender
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
}

// Config holds the lifetimes of staged data and passcodes.
type Config struct {
	StagingTTL time.Duration
	OTPTTL     time.Duration
	// TestMode returns the issued passcode to the caller.
	TestMode bool
}

// Input is the data submitted on initiate.
type Input struct {
	Name     string
	Email    string
	Phone    string
	Academic staging.Academic
}

// InitiateResult is returned by Initiate. Code is only set in test mode.
type InitiateResult struct {
	Phone string
	Code  string
}

// Service orchestrates staging, passcode issuance and profile commit.
type Service struct {
	otp      *otp.Service
	staging  staging.Cache
	profiles profile.Repository
	sms      notification.Sender
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	cfg      Config
}

// NewService wires the orchestrator.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if cfg.OTPTTL <= 0 && deps.OTP != nil {
		cfg.OTPTTL = deps.OTP.TTL()
	}
	if cfg.StagingTTL <= 0 {
		cfg.StagingTTL = DefaultStagingTTL
	}
	return &Service{
		otp:      deps.OTP,
		staging:  deps.Staging,
		profiles: deps.Profiles,
		sms:      deps.SMS,
		clock:    deps.Clock,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		cfg:      cfg,
	}
}

// Initiate validates the submission, stages it under the normalized phone,
// issues a passcode and sends it by SMS. A second call for the same phone
// replaces the staged data and invalidates the earlier code.
func (s *Service) Initiate(ctx context.Context, in Input) (result InitiateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.Initiate")
	defer func() { endSpan(span, err) }()

	reg, err := s.validate(in)
	if err != nil {
		return InitiateResult{}, err
	}
	masked := phone.Mask(reg.Phone)
	span.SetAttributes(attribute.String("phone.masked", masked))

	if err := s.staging.Put(ctx, reg.Phone, reg, s.cfg.StagingTTL); err != nil {
		return InitiateResult{}, apperr.Internal("could not start registration", fmt.Errorf("stage registration: %w", err))
	}

	code, err := s.otp.IssueWithTTL(ctx, reg.Phone, s.cfg.OTPTTL)
	if err != nil {
		return InitiateResult{}, apperr.Internal("could not start registration", err)
	}
	s.metrics.IncOTPIssued()

	msg := notification.Message{
		Kind:        notification.KindOTP,
		Destination: reg.Phone,
		Body:        fmt.Sprintf("Your verification code is: %s. Valid for %d minutes.", code, ttlMinutes(s.cfg.OTPTTL)),
	}
	if _, err := s.sms.Send(ctx, msg); err != nil {
		s.metrics.IncSMSFailures()
		s.logger.WarnContext(ctx, "otp sms failed", "phone", masked, "error", err)
		return InitiateResult{}, apperr.Transport("failed to send verification code, please retry", err)
	}

	s.logger.InfoContext(ctx, "registration initiated", "phone", masked)
	result = InitiateResult{Phone: reg.Phone}
	if s.cfg.TestMode {
		result.Code = code
	}
	return result, nil
}

// Verify consumes the passcode and commits the staged registration as a
// verified profile. The staged entry is kept when the profile write fails.
func (s *Service) Verify(ctx context.Context, rawPhone, code string) (p profile.Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.Verify")
	defer func() { endSpan(span, err) }()

	number := phone.Normalize(rawPhone)
	code = strings.TrimSpace(code)
	fields := map[string]string{}
	if !phone.Valid(number) {
		fields["phone"] = "enter a valid phone number"
	}
	if len(code) != otp.CodeLength || strings.Trim(code, "0123456789") != "" {
		fields["otp"] = fmt.Sprintf("code must be %d digits", otp.CodeLength)
	}
	if len(fields) > 0 {
		return profile.Profile{}, apperr.Validation(fields)
	}
	masked := phone.Mask(number)
	span.SetAttributes(attribute.String("phone.masked", masked))

	ok, err := s.otp.Verify(ctx, number, code)
	if err != nil {
		s.metrics.ObserveVerification(metrics.ResultError)
		return profile.Profile{}, apperr.Internal("verification failed", err)
	}
	if !ok {
		s.metrics.ObserveVerification(metrics.ResultRejected)
		s.logger.InfoContext(ctx, "otp rejected", "phone", masked)
		return profile.Profile{}, apperr.Authentication(msgInvalidCode)
	}

	reg, err := s.staging.Get(ctx, number)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			s.metrics.ObserveVerification(metrics.ResultSessionExpired)
			s.logger.InfoContext(ctx, "staged registration missing", "phone", masked)
			return profile.Profile{}, apperr.State(msgSessionExpired)
		}
		s.metrics.ObserveVerification(metrics.ResultError)
		return profile.Profile{}, apperr.Internal("verification failed", fmt.Errorf("load staged registration: %w", err))
	}

	p, err = s.profiles.Upsert(ctx, profile.UpsertInput{
		Phone: number,
		Name:  reg.Name,
		Email: reg.Email,
		At:    s.clock.Now(),
	})
	if err != nil {
		s.metrics.ObserveVerification(metrics.ResultError)
		s.logger.ErrorContext(ctx, "profile write failed", "phone", masked, "error", err)
		if errors.Is(err, profile.ErrConflict) {
			return profile.Profile{}, apperr.Conflict("profile already exists", err)
		}
		return profile.Profile{}, apperr.Internal("could not save profile, restart registration", err)
	}

	if err := s.staging.Delete(ctx, number); err != nil {
		s.logger.WarnContext(ctx, "staged registration not evicted", "phone", masked, "error", err)
	}

	s.metrics.ObserveVerification(metrics.ResultSuccess)
	s.metrics.IncRegistrationsCompleted()
	s.logger.InfoContext(ctx, "registration completed", "phone", masked, "profile_id", p.ID)
	return p, nil
}

// GetProfile returns the verified profile for a phone.
func (s *Service) GetProfile(ctx context.Context, rawPhone string) (p profile.Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.GetProfile")
	defer func() { endSpan(span, err) }()

	number := phone.Normalize(rawPhone)
	if !phone.Valid(number) {
		return profile.Profile{}, apperr.NotFound("profile not found")
	}
	p, err = s.profiles.GetVerifiedByPhone(ctx, number)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Profile{}, apperr.NotFound("profile not found")
		}
		return profile.Profile{}, apperr.Internal("could not load profile", err)
	}
	return p, nil
}

func (s *Service) validate(in Input) (staging.Registration, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	number := phone.Normalize(in.Phone)

	fields := map[string]string{}
	switch {
	case name == "":
		fields["name"] = "name is required"
	case utf8.RuneCountInString(name) > maxNameLength:
		fields["name"] = fmt.Sprintf("name must be at most %d characters", maxNameLength)
	}
	switch {
	case email == "":
		fields["email"] = "email is required"
	case !govalidator.IsEmail(email):
		fields["email"] = "enter a valid email address"
	}
	switch {
	case number == "":
		fields["phone"] = "phone is required"
	case !phone.Valid(number):
		fields["phone"] = "enter a valid phone number"
	}
	if len(fields) > 0 {
		return staging.Registration{}, apperr.Validation(fields)
	}

	return staging.Registration{
		Name:     name,
		Email:    email,
		Phone:    number,
		Academic: in.Academic,
		StagedAt: s.clock.Now().UTC(),
	}, nil
}

func ttlMinutes(ttl time.Duration) int {
	return int(math.Max(1, math.Ceil(ttl.Minutes())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
