package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edupath/onboarding/internal/config"
	"github.com/edupath/onboarding/internal/infra"
	"github.com/edupath/onboarding/internal/logging"
	"github.com/edupath/onboarding/internal/otp"
	"github.com/edupath/onboarding/internal/server"
)

const usage = `usage: onboarding-api [command]

commands:
  serve                         run the HTTP API (default)
  migrate                       apply the database schema
  purge-otps [-older-than 24h]  delete passcodes that expired before the cutoff
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "purge-otps":
		err = purgeOTPs(ctx, cfg, logger, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, cleanup, err := connect(ctx, cfg, logger, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.AutoMigrate && st.db != nil {
		if err := infra.Migrate(ctx, st.db); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	srv, err := server.New(cfg, st.db, st.cache, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	logger.Info("server starting", "addr", cfg.Address(), "env", cfg.AppEnv, "otp_test_mode", cfg.OTP.TestMode)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("server exited cleanly")
	return nil
}

func migrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := infra.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}

func purgeOTPs(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("purge-otps", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", 24*time.Hour, "delete records that expired at least this long ago")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *olderThan < 0 {
		return fmt.Errorf("-older-than must not be negative")
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := otp.NewService(otp.NewPostgresStore(db), clockwork.NewRealClock(), otp.Config{TTL: cfg.OTP.Expiry})
	n, err := svc.Purge(ctx, *olderThan)
	if err != nil {
		return err
	}
	logger.Info("otp records purged", "count", n, "older_than", olderThan.String())
	return nil
}
