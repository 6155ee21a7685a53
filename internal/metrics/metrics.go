package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the onboarding flow.
type Metrics struct {
	OTPIssued              prometheus.Counter
	OTPVerifications       *prometheus.CounterVec
	RegistrationsCompleted prometheus.Counter
	SMSFailures            prometheus.Counter
	FilterRequests         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil registerer
// yields unregistered collectors, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OTPIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_otp_issued_total",
			Help: "Total number of one-time passcodes issued",
		}),
		OTPVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_otp_verifications_total",
			Help: "OTP verification attempts by result",
		}, []string{"result"}),
		RegistrationsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_registrations_completed_total",
			Help: "Profiles materialized after successful verification",
		}),
		SMSFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_sms_failures_total",
			Help: "SMS dispatches that failed during initiate",
		}),
		FilterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_ai_filter_requests_total",
			Help: "Course filter suggestions by result",
		}, []string{"result"}),
	}
}

// Verification results.
const (
	ResultSuccess        = "success"
	ResultRejected       = "rejected"
	ResultSessionExpired = "session_expired"
	ResultError          = "error"
	ResultMalformed      = "malformed"
)

func (m *Metrics) IncOTPIssued() {
	if m == nil {
		return
	}
	m.OTPIssued.Inc()
}

func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.OTPVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRegistrationsCompleted() {
	if m == nil {
		return
	}
	m.RegistrationsCompleted.Inc()
}

func (m *Metrics) IncSMSFailures() {
	if m == nil {
		return
	}
	m.SMSFailures.Inc()
}

func (m *Metrics) ObserveFilterRequest(result string) {
	if m == nil {
		return
	}
	m.FilterRequests.WithLabelValues(result).Inc()
}
