package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultENSName is the naming-service node the audit note is written to
	DefaultENSName = "shadowswap.eth"

	// DefaultENSAuditKey is the text record key holding the latest settlement hash
	DefaultENSAuditKey = "latest_settlement"

	// DefaultPoolFee is the pool fee in hundredths of a bip
	DefaultPoolFee = 3000

	// DefaultPoolTickSpacing is the pool tick spacing
	DefaultPoolTickSpacing = 60

	// DefaultExchangeRate is the number of secondary token units per native unit
	DefaultExchangeRate = "1000"

	// DefaultPriceToleranceDivisor gives a 5% tolerance
	DefaultPriceToleranceDivisor = "20"

	DefaultSettlementDelay     = 5 * time.Second
	DefaultAuditSettleDelay    = 2 * time.Second
	DefaultConfirmationTimeout = 2 * time.Minute

	DefaultRateLimitMaxRetries = 3
	DefaultRateLimitBackoff    = 2 * time.Second

	DefaultGasMultiplier = 1.1

	// DefaultMaxGasPrice of zero disables the cap
	DefaultMaxGasPrice = "0"

	// DefaultMinSolverBalance is 0.01 native
	DefaultMinSolverBalance = "10000000000000000"

	DefaultEventHistoryLimit  = 50
	DefaultEventTTL           = 5 * time.Minute
	DefaultEventSweepInterval = time.Minute

	DefaultHTTPPort    = "3000"
	DefaultMetricsPort = "8080"
	DefaultCORSOrigin  = "*"

	// DefaultSubmitRateLimit is submissions per minute per client
	DefaultSubmitRateLimit = 60
	DefaultSubmitRateBurst = 10

	DefaultCircuitBreakerEnabled   = true
	DefaultCircuitBreakerThreshold = 5
	DefaultCircuitBreakerWindow    = time.Minute
	DefaultCircuitBreakerReset     = 30 * time.Second

	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultLogColoring = true
)

// GetEnvAddress returns a hex address from key. Empty values return "" when optional.
func GetEnvAddress(key string, required bool) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		if required {
			return "", fmt.Errorf("%s environment variable is required", key)
		}
		return "", nil
	}
	if !common.IsHexAddress(value) {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid Ethereum address", key, value)
	}
	return value, nil
}

// GetEnvString returns key or fallback.
func GetEnvString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// GetEnvPositiveInt returns key as an integer greater than 0.
func GetEnvPositiveInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

// GetEnvNonNegativeInt returns key as an integer greater than or equal to 0.
func GetEnvNonNegativeInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be greater than or equal to 0", key)
	}
	return n, nil
}

// GetEnvDuration returns key parsed as a duration string.
func GetEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return parsed, nil
}

// GetEnvBool accepts 'true' or 'false'.
func GetEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}

// GetEnvBigInt returns key as a base-10 integer greater than or equal to 0.
func GetEnvBigInt(key, fallback string) (*big.Int, error) {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}

	n := new(big.Int)
	if _, ok := n.SetString(value, 10); !ok {
		return nil, fmt.Errorf("invalid %s value: %s, must be a valid integer string", key, value)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%s must be greater than or equal to 0", key)
	}
	return n, nil
}

// GetEnvPort returns key as a numeric port string.
func GetEnvPort(key, fallback string) (string, error) {
	port := os.Getenv(key)
	if port == "" {
		return fallback, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid integer", key, port)
	}
	return port, nil
}

// GetEnvGasMultiplier returns the multiplier applied to suggested gas prices.
func GetEnvGasMultiplier() (float64, error) {
	value := os.Getenv("GAS_MULTIPLIER")
	if value == "" {
		return DefaultGasMultiplier, nil
	}

	m, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid GAS_MULTIPLIER value: %s, must be a number", value)
	}
	if m < 1 {
		return 0, fmt.Errorf("GAS_MULTIPLIER must be at least 1")
	}
	return m, nil
}

// GetEnvPrivateKey returns the solver signing key without a 0x prefix.
func GetEnvPrivateKey() (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(os.Getenv("PRIVATE_KEY")), "0x")
	if key == "" {
		return "", fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	return key, nil
}

// GetEnvRPCURL returns the chain RPC endpoint.
func GetEnvRPCURL() (string, error) {
	rpc := strings.TrimSpace(os.Getenv("RPC_URL"))
	if rpc == "" {
		return "", fmt.Errorf("RPC_URL environment variable is required")
	}
	return rpc, nil
}

// GetEnvLogFormat returns "text" or "json".
func GetEnvLogFormat() (string, error) {
	format := GetEnvString("LOG_FORMAT", DefaultLogFormat)
	if format != "text" && format != "json" {
		return "", fmt.Errorf("invalid LOG_FORMAT value: %s, must be 'text' or 'json'", format)
	}
	return format, nil
}
