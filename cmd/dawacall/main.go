package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/okothm/dawacall/internal/api"
	"github.com/okothm/dawacall/internal/dispatch"
	"github.com/okothm/dawacall/internal/messaging"
	"github.com/okothm/dawacall/internal/reward"
	"github.com/okothm/dawacall/internal/scheduler"
	"github.com/okothm/dawacall/internal/store"
	"github.com/okothm/dawacall/internal/ussd"
	"github.com/okothm/dawacall/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for DawaCall state data
	DefaultStateDir = "/var/lib/dawacall"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "dawacall.db"
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout = 15 * time.Second
)

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	RedisAddr       string
	APIAddr         string
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
	AWSRegion       string
	SESFromEmail    string
	AirtimeURL      string
	AirtimeKey      string
	SessionTimeout  time.Duration
	CleanupSchedule string
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	redisAddr       *string
	apiAddr         *string
	cleanupSchedule *string
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := buildDispatcher(ctx, st, config)
	dispatcher.Start(ctx)

	rewards := buildRewardGateway(config)

	manager := ussd.NewManager(st,
		ussd.WithDispatcher(dispatcher),
		ussd.WithRewardGateway(rewards),
		ussd.WithSessionTimeout(config.SessionTimeout),
	)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.cleanupSchedule, manager.ExpireStale); err != nil {
		slog.Error("Failed to schedule session cleanup", "error", err, "schedule", *flags.cleanupSchedule)
		os.Exit(1)
	}

	server := api.NewServer(manager, api.WithAddr(*flags.apiAddr))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	slog.Info("DawaCall running", "addr", *flags.apiAddr)
	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("DawaCall failed to run", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown failed", "error", err)
	}
	dispatcher.Wait()
	slog.Info("DawaCall exited successfully")
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DAWACALL_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("DAWACALL_STATE_DIR"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		APIAddr:         os.Getenv("API_ADDR"),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_FROM_NUMBER"),
		AWSRegion:       os.Getenv("AWS_REGION"),
		SESFromEmail:    os.Getenv("SES_FROM_EMAIL"),
		AirtimeURL:      os.Getenv("AIRTIME_API_URL"),
		AirtimeKey:      os.Getenv("AIRTIME_API_KEY"),
		SessionTimeout:  util.ParseDurationEnv("SESSION_TIMEOUT", ussd.DefaultSessionTimeout),
		CleanupSchedule: os.Getenv("CLEANUP_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.CleanupSchedule == "" {
		config.CleanupSchedule = scheduler.DefaultCleanupSchedule
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"DAWACALL_STATE_DIR", config.StateDir,
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"API_ADDR", config.APIAddr,
		"TWILIO_CONFIGURED", config.TwilioSID != "" && config.TwilioToken != "",
		"SES_CONFIGURED", config.SESFromEmail != "",
		"AIRTIME_CONFIGURED", config.AirtimeURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for DawaCall data (overrides $DAWACALL_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		redisAddr:       flag.String("redis-addr", config.RedisAddr, "Redis address for the session cache (overrides $REDIS_ADDR)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		cleanupSchedule: flag.String("cleanup-schedule", config.CleanupSchedule, "cron schedule for the stale-session sweep (overrides $CLEANUP_SCHEDULE)"),
	}

	flag.Parse()

	// Follow a moved state directory when the DSN still points at the default
	// SQLite location.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}

	return flags
}

// buildStore constructs the configured store backend, with the optional
// Redis session cache in front.
func buildStore(flags Flags) (store.Store, error) {
	var base store.Store
	var err error
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		base, err = store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
		base, err = store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
	}
	if err != nil {
		return nil, err
	}

	if *flags.redisAddr != "" {
		cached, err := store.NewCachedStore(base, *flags.redisAddr)
		if err != nil {
			return nil, err
		}
		return cached, nil
	}
	return base, nil
}

// buildDispatcher wires the distribution engine with whichever channel
// gateways are configured.
func buildDispatcher(ctx context.Context, st store.Store, config Config) *dispatch.Dispatcher {
	var senders []messaging.Service

	if config.TwilioSID != "" && config.TwilioToken != "" && config.TwilioFrom != "" {
		sms, err := messaging.NewTwilioSender(
			messaging.WithAccountSID(config.TwilioSID),
			messaging.WithAuthToken(config.TwilioToken),
			messaging.WithFromNumber(config.TwilioFrom),
		)
		if err != nil {
			slog.Error("Failed to configure Twilio SMS gateway, SMS channel disabled", "error", err)
		} else {
			senders = append(senders, sms)
		}
	} else {
		slog.Warn("Twilio not configured, SMS channel disabled")
	}

	if config.SESFromEmail != "" {
		email, err := messaging.NewSESSender(ctx,
			messaging.WithRegion(config.AWSRegion),
			messaging.WithFromEmail(config.SESFromEmail),
		)
		if err != nil {
			slog.Error("Failed to configure SES email gateway, email channel disabled", "error", err)
		} else {
			senders = append(senders, email)
		}
	} else {
		slog.Warn("SES not configured, email channel disabled")
	}

	return dispatch.NewDispatcher(st, dispatch.NewEvaluator(), dispatch.WithSenders(senders...))
}

// buildRewardGateway wires the airtime provider, or a logging no-op when
// credentials are absent.
func buildRewardGateway(config Config) ussd.RewardGateway {
	if config.AirtimeURL == "" || config.AirtimeKey == "" {
		slog.Warn("Airtime provider not configured, rewards disabled")
		return reward.NoopGateway{}
	}
	gw, err := reward.NewHTTPGateway(
		reward.WithBaseURL(config.AirtimeURL),
		reward.WithAPIKey(config.AirtimeKey),
	)
	if err != nil {
		slog.Error("Failed to configure airtime gateway, rewards disabled", "error", err)
		return reward.NoopGateway{}
	}
	return gw
}
