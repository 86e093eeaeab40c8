package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "Meridian"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour

	defaultTransferFeeBPS   = 0
	defaultWithdrawalFeeBPS = 100
	defaultPaymentFeeBPS    = 250
	defaultPayoutFlatFee    = 2500
	defaultChargebackFee    = 1500

	defaultBlockThreshold  = 80
	defaultReviewThreshold = 60
	defaultStepUpThreshold = 40

	defaultSettlementInterval = time.Hour
	defaultSettlementLookback = 24 * time.Hour
	defaultCancelWindow       = 30 * time.Minute
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Fee schedule, basis points unless stated otherwise. Flat fees are minor units.
	TransferFeeBPS   int64
	WithdrawalFeeBPS int64
	PaymentFeeBPS    int64
	PayoutFlatFee    int64
	ChargebackFee    int64

	// Risk gate thresholds on the 0-100 score.
	BlockThreshold  int
	ReviewThreshold int
	StepUpThreshold int

	SettlementInterval time.Duration
	SettlementLookback time.Duration
	CancelWindow       time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		TransferFeeBPS:     defaultTransferFeeBPS,
		WithdrawalFeeBPS:   defaultWithdrawalFeeBPS,
		PaymentFeeBPS:      defaultPaymentFeeBPS,
		PayoutFlatFee:      defaultPayoutFlatFee,
		ChargebackFee:      defaultChargebackFee,
		BlockThreshold:     defaultBlockThreshold,
		ReviewThreshold:    defaultReviewThreshold,
		StepUpThreshold:    defaultStepUpThreshold,
		SettlementInterval: defaultSettlementInterval,
		SettlementLookback: defaultSettlementLookback,
		CancelWindow:       defaultCancelWindow,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.SettlementInterval, err = durationEnv("SETTLEMENT_INTERVAL", cfg.SettlementInterval); err != nil {
		return Config{}, err
	}
	if cfg.SettlementLookback, err = durationEnv("SETTLEMENT_LOOKBACK", cfg.SettlementLookback); err != nil {
		return Config{}, err
	}
	if cfg.CancelWindow, err = durationEnv("CANCEL_WINDOW", cfg.CancelWindow); err != nil {
		return Config{}, err
	}

	if cfg.TransferFeeBPS, err = int64Env("FEE_TRANSFER_BPS", cfg.TransferFeeBPS); err != nil {
		return Config{}, err
	}
	if cfg.WithdrawalFeeBPS, err = int64Env("FEE_WITHDRAWAL_BPS", cfg.WithdrawalFeeBPS); err != nil {
		return Config{}, err
	}
	if cfg.PaymentFeeBPS, err = int64Env("FEE_PAYMENT_BPS", cfg.PaymentFeeBPS); err != nil {
		return Config{}, err
	}
	if cfg.PayoutFlatFee, err = int64Env("FEE_PAYOUT_FLAT", cfg.PayoutFlatFee); err != nil {
		return Config{}, err
	}
	if cfg.ChargebackFee, err = int64Env("CHARGEBACK_FEE", cfg.ChargebackFee); err != nil {
		return Config{}, err
	}

	if cfg.BlockThreshold, err = intEnv("RISK_BLOCK_THRESHOLD", cfg.BlockThreshold); err != nil {
		return Config{}, err
	}
	if cfg.ReviewThreshold, err = intEnv("RISK_REVIEW_THRESHOLD", cfg.ReviewThreshold); err != nil {
		return Config{}, err
	}
	if cfg.StepUpThreshold, err = intEnv("RISK_STEPUP_THRESHOLD", cfg.StepUpThreshold); err != nil {
		return Config{}, err
	}

	if cfg.BlockThreshold <= cfg.ReviewThreshold || cfg.ReviewThreshold <= cfg.StepUpThreshold {
		return Config{}, fmt.Errorf("risk thresholds must be strictly ordered: block > review > step-up")
	}

	// Development runs on in-memory stores when the backing services are
	// absent; everywhere else they are mandatory.
	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// IsDev reports whether the application runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		if s := os.Getenv(key + "_SECONDS"); s != "" {
			seconds, err := strconv.Atoi(s)
			if err != nil {
				return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
