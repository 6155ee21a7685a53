package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/edupath/onboarding/internal/config"
	"github.com/edupath/onboarding/internal/coursefilter"
	"github.com/edupath/onboarding/internal/logging"
	"github.com/edupath/onboarding/internal/metrics"
	"github.com/edupath/onboarding/internal/middleware"
	"github.com/edupath/onboarding/internal/notification"
	"github.com/edupath/onboarding/internal/otp"
	"github.com/edupath/onboarding/internal/profile"
	"github.com/edupath/onboarding/internal/registration"
	"github.com/edupath/onboarding/internal/staging"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case in-memory stores are used.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  redis.UniversalClient
	Logger *slog.Logger

	// Registry receives the service metrics and backs /metrics. A fresh
	// registry is created when nil.
	Registry *prometheus.Registry
	Clock    clockwork.Clock
	// SMS and Model override the collaborators built from Cfg.
	SMS   notification.Sender
	Model coursefilter.Model
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}

	sms, err := smsSender(d)
	if err != nil {
		return err
	}
	model := d.Model
	if model == nil && d.Cfg.Gemini.APIKey != "" {
		model = coursefilter.NewGeminiModel(nil, d.Cfg.Gemini.BaseURL, d.Cfg.Gemini.Model, d.Cfg.Gemini.APIKey)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	m := metrics.New(d.Registry)

	var (
		otpStore     otp.Store
		stagingCache staging.Cache
		profiles     profile.Repository
	)
	if d.DB != nil {
		otpStore = otp.NewPostgresStore(d.DB)
		profiles = profile.NewPostgresRepository(d.DB)
	} else {
		otpStore = otp.NewMemoryStore()
		profiles = profile.NewMemoryRepository()
	}
	if d.Cache != nil {
		stagingCache = staging.NewRedisCache(d.Cache)
	} else {
		stagingCache = staging.NewMemoryCache(d.Clock)
	}

	otpSvc := otp.NewService(otpStore, d.Clock, otp.Config{
		TTL:    d.Cfg.OTP.Expiry,
		Pepper: []byte(d.Cfg.OTP.Pepper),
	})
	registrationSvc := registration.NewService(registration.Deps{
		OTP:      otpSvc,
		Staging:  stagingCache,
		Profiles: profiles,
		SMS:      sms,
		Clock:    d.Clock,
		Logger:   d.Logger,
		Metrics:  m,
	}, registration.Config{
		StagingTTL: d.Cfg.OTP.StagingTTL,
		OTPTTL:     d.Cfg.OTP.Expiry,
		TestMode:   d.Cfg.OTP.TestMode,
	})
	filterSvc := coursefilter.NewService(model, d.Logger, m)

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": requestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var initiateLimit, verifyLimit fiber.Handler
	if d.Cache != nil {
		initiateLimit = middleware.OTPRateLimit(d.Cache, "initiate", d.Cfg.OTP.RatePerMinute, d.Logger)
		verifyLimit = middleware.OTPRateLimit(d.Cache, "verify", d.Cfg.OTP.RatePerMinute, d.Logger)
	}

	profileGroup := api.Group("/profile")
	RegisterProfileRoutes(profileGroup, registrationSvc, initiateLimit, verifyLimit, d.Logger)
	RegisterFilterRoutes(profileGroup, filterSvc, d.Logger)

	return nil
}

func smsSender(d Deps) (notification.Sender, error) {
	if d.SMS != nil {
		return d.SMS, nil
	}
	if d.Cfg.Twilio.Configured() {
		return notification.NewTwilioSender(d.Cfg.Twilio.AccountSID, d.Cfg.Twilio.AuthToken, d.Cfg.Twilio.FromNumber)
	}
	if d.Cfg.IsDevelopment() || d.Cfg.OTP.TestMode {
		return notification.NewLoggerSender(d.Logger), nil
	}
	return nil, fmt.Errorf("twilio credentials are required when APP_ENV=%s", d.Cfg.AppEnv)
}
