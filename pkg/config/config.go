package config

import (
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/joho/godotenv"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
)

// Config holds the configuration for the solver service
type Config struct {
	RPCURL          string
	PrivateKey      string
	RouterAddress   string
	HookAddress     string
	TokenAddress    string
	ResolverAddress string
	ENSName         string
	ENSAuditKey     string
	PoolFee         int64
	PoolTickSpacing int64

	ExchangeRate          *big.Int
	PriceToleranceDivisor *big.Int

	SettlementDelay     time.Duration
	AuditSettleDelay    time.Duration
	ConfirmationTimeout time.Duration
	RateLimitMaxRetries int
	RateLimitBackoff    time.Duration
	GasMultiplier       float64
	MaxGasPrice         *big.Int
	MinSolverBalance    *big.Int

	Events EventsConfig

	HTTPPort        string
	MetricsPort     string
	CORSOrigin      string
	SubmitRateLimit int
	SubmitRateBurst int
	MetricsAPIKey   string

	CircuitBreaker CircuitBreakerConfig

	JournalPath        string
	JournalDatabaseURL string

	LoggerConfig LoggerConfig
}

// EventsConfig holds broadcaster retention
type EventsConfig struct {
	HistoryLimit  int
	TTL           time.Duration
	SweepInterval time.Duration
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    string
	Format   string
	Coloring bool
	File     string
}

// Options converts the logging configuration for logger.New.
func (c LoggerConfig) Options() logger.Options {
	return logger.Options{
		Level:    c.Level,
		Format:   c.Format,
		Coloring: c.Coloring,
		File:     c.File,
	}
}

// loader keeps the first getter error so LoadConfig reads top to bottom.
type loader struct {
	err error
}

func (l *loader) str(v string, err error) string {
	if l.err == nil && err != nil {
		l.err = err
	}
	return v
}

func (l *loader) num(v int, err error) int {
	if l.err == nil && err != nil {
		l.err = err
	}
	return v
}

func (l *loader) dur(v time.Duration, err error) time.Duration {
	if l.err == nil && err != nil {
		l.err = err
	}
	return v
}

func (l *loader) flag(v bool, err error) bool {
	if l.err == nil && err != nil {
		l.err = err
	}
	return v
}

func (l *loader) amount(v *big.Int, err error) *big.Int {
	if l.err == nil && err != nil {
		l.err = err
	}
	return v
}

// LoadConfig loads the configuration from environment variables. envFiles default to ".env".
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	var l loader
	cfg := &Config{
		RPCURL:          l.str(GetEnvRPCURL()),
		PrivateKey:      l.str(GetEnvPrivateKey()),
		RouterAddress:   l.str(GetEnvAddress("ROUTER_ADDRESS", true)),
		HookAddress:     l.str(GetEnvAddress("HOOK_ADDRESS", true)),
		TokenAddress:    l.str(GetEnvAddress("TOKEN_ADDRESS", true)),
		ResolverAddress: l.str(GetEnvAddress("ENS_RESOLVER_ADDRESS", false)),
		ENSName:         GetEnvString("ENS_NAME", DefaultENSName),
		ENSAuditKey:     GetEnvString("ENS_AUDIT_KEY", DefaultENSAuditKey),
		PoolFee:         int64(l.num(GetEnvPositiveInt("POOL_FEE", DefaultPoolFee))),
		PoolTickSpacing: int64(l.num(GetEnvPositiveInt("POOL_TICK_SPACING", DefaultPoolTickSpacing))),

		ExchangeRate:          l.amount(GetEnvBigInt("EXCHANGE_RATE", DefaultExchangeRate)),
		PriceToleranceDivisor: l.amount(GetEnvBigInt("PRICE_TOLERANCE_DIVISOR", DefaultPriceToleranceDivisor)),

		SettlementDelay:     l.dur(GetEnvDuration("SETTLEMENT_DELAY", DefaultSettlementDelay)),
		AuditSettleDelay:    l.dur(GetEnvDuration("AUDIT_SETTLE_DELAY", DefaultAuditSettleDelay)),
		ConfirmationTimeout: l.dur(GetEnvDuration("CONFIRMATION_TIMEOUT", DefaultConfirmationTimeout)),
		RateLimitMaxRetries: l.num(GetEnvNonNegativeInt("RATE_LIMIT_MAX_RETRIES", DefaultRateLimitMaxRetries)),
		RateLimitBackoff:    l.dur(GetEnvDuration("RATE_LIMIT_BACKOFF", DefaultRateLimitBackoff)),
		MaxGasPrice:         l.amount(GetEnvBigInt("MAX_GAS_PRICE", DefaultMaxGasPrice)),
		MinSolverBalance:    l.amount(GetEnvBigInt("MIN_SOLVER_BALANCE", DefaultMinSolverBalance)),

		Events: EventsConfig{
			HistoryLimit:  l.num(GetEnvPositiveInt("EVENT_HISTORY_LIMIT", DefaultEventHistoryLimit)),
			TTL:           l.dur(GetEnvDuration("EVENT_TTL", DefaultEventTTL)),
			SweepInterval: l.dur(GetEnvDuration("EVENT_SWEEP_INTERVAL", DefaultEventSweepInterval)),
		},

		HTTPPort:        l.str(GetEnvPort("HTTP_PORT", DefaultHTTPPort)),
		MetricsPort:     l.str(GetEnvPort("METRICS_PORT", DefaultMetricsPort)),
		CORSOrigin:      GetEnvString("CORS_ORIGIN", DefaultCORSOrigin),
		SubmitRateLimit: l.num(GetEnvPositiveInt("SUBMIT_RATE_LIMIT", DefaultSubmitRateLimit)),
		SubmitRateBurst: l.num(GetEnvPositiveInt("SUBMIT_RATE_BURST", DefaultSubmitRateBurst)),
		MetricsAPIKey:   GetEnvString("METRICS_API_KEY", ""),

		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        l.flag(GetEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)),
			Threshold:      l.num(GetEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)),
			WindowDuration: l.dur(GetEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)),
			ResetTimeout:   l.dur(GetEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)),
		},

		JournalPath:        GetEnvString("JOURNAL_PATH", ""),
		JournalDatabaseURL: GetEnvString("JOURNAL_DATABASE_URL", ""),
	}

	gasMultiplier, err := GetEnvGasMultiplier()
	if l.err == nil && err != nil {
		l.err = err
	}
	cfg.GasMultiplier = gasMultiplier

	logLevel := GetEnvString("LOG_LEVEL", DefaultLogLevel)
	if _, err := logger.ParseLevel(logLevel); l.err == nil && err != nil {
		l.err = fmt.Errorf("invalid LOG_LEVEL value: %s, must be debug, info, notice or error", logLevel)
	}
	cfg.LoggerConfig = LoggerConfig{
		Level:    logLevel,
		Format:   l.str(GetEnvLogFormat()),
		Coloring: l.flag(GetEnvBool("LOG_COLORING", DefaultLogColoring)),
		File:     GetEnvString("LOG_FILE", ""),
	}

	if l.err != nil {
		return nil, l.err
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("RPC_URL environment variable is required")
	}
	if cfg.ExchangeRate == nil || cfg.ExchangeRate.Sign() <= 0 {
		return fmt.Errorf("EXCHANGE_RATE must be greater than 0")
	}
	if cfg.PriceToleranceDivisor == nil || cfg.PriceToleranceDivisor.Sign() <= 0 {
		return fmt.Errorf("PRICE_TOLERANCE_DIVISOR must be greater than 0")
	}
	if cfg.HTTPPort == cfg.MetricsPort {
		return fmt.Errorf("HTTP_PORT and METRICS_PORT must differ, both are %s", cfg.HTTPPort)
	}
	if cfg.JournalPath != "" && cfg.JournalDatabaseURL != "" {
		return fmt.Errorf("set at most one of JOURNAL_PATH and JOURNAL_DATABASE_URL")
	}
	return nil
}
