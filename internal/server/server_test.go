package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupath/onboarding/internal/config"
	"github.com/edupath/onboarding/internal/logging"
)

func TestNewServesInDevelopmentWithoutStores(t *testing.T) {
	cfg := config.Config{AppName: "test", AppEnv: "development", Port: "0", ShutdownPeriod: time.Second}
	cfg.OTP.Expiry = 5 * time.Minute
	cfg.OTP.StagingTTL = 5 * time.Minute

	srv, err := New(cfg, nil, nil, logging.Discard())
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewRejectsMissingStoresInProduction(t *testing.T) {
	_, err := New(config.Config{AppEnv: "production"}, nil, nil, logging.Discard())
	require.Error(t, err)
}
