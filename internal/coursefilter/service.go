package coursefilter

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/edupath/onboarding/internal/apperr"
	"github.com/edupath/onboarding/internal/logging"
	"github.com/edupath/onboarding/internal/metrics"
)

// ErrMalformedResponse marks model output that could not be decoded as filters.
var ErrMalformedResponse = errors.New("malformed model response")

// ErrNotConfigured is returned when no model is available.
var ErrNotConfigured = errors.New("course filter model not configured")

// Service produces filter suggestions.
type Service struct {
	model   Model
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService builds a Service. model may be nil, in which case every call
// fails with a dependency error.
func NewService(model Model, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{model: model, logger: logger, metrics: m}
}

// Configured reports whether a model is wired.
func (s *Service) Configured() bool {
	return s.model != nil
}

// Suggest asks the model for filters matching profile, using sample to
// show it the catalogue's vocabulary.
func (s *Service) Suggest(ctx context.Context, profile AcademicProfile, sample []Course) (Filters, error) {
	if err := validate(profile, sample); err != nil {
		return Filters{}, err
	}
	if s.model == nil {
		return Filters{}, apperr.Dependency("course suggestions are unavailable", ErrNotConfigured)
	}

	prompt, err := buildPrompt(profile, sample)
	if err != nil {
		return Filters{}, apperr.Validation(map[string]string{"courseSample": "course sample could not be encoded"})
	}

	reply, err := s.model.Generate(ctx, prompt)
	if err != nil {
		s.observe(err)
		s.logger.ErrorContext(ctx, "course filter model failed", "error", err)
		return Filters{}, apperr.Dependency("AI processing failed, please retry", err)
	}

	filters, err := parseFilters(reply)
	if err != nil {
		s.observe(err)
		s.logger.ErrorContext(ctx, "course filter reply unparseable", "error", err, "reply_length", len(reply))
		return Filters{}, apperr.Dependency("failed to parse AI response", err)
	}
	s.metrics.ObserveFilterRequest(metrics.ResultSuccess)
	return filters, nil
}

func (s *Service) observe(err error) {
	if errors.Is(err, ErrMalformedResponse) {
		s.metrics.ObserveFilterRequest(metrics.ResultMalformed)
		return
	}
	s.metrics.ObserveFilterRequest(metrics.ResultError)
}

func validate(p AcademicProfile, sample []Course) error {
	fields := map[string]string{}
	if len(nonEmpty(p.Countries)) == 0 {
		fields["countries"] = "at least one country is required"
	}
	if strings.TrimSpace(p.Degree) == "" {
		fields["degree"] = "degree is required"
	}
	if len(nonEmpty(p.Fields)) == 0 {
		fields["fields"] = "at least one field of interest is required"
	}
	if len(sample) == 0 {
		fields["courseSample"] = "course sample is required"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
