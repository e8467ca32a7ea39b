package settlement

import (
	"errors"
	"strings"
)

// ErrNotSettleable is returned by ExecuteOne when the intent is not in SETTLING.
var ErrNotSettleable = errors.New("intent is not ready for settlement")

// Error types used in results and metrics.
const (
	ErrorTypeSimulationRevert  = "simulation_revert"
	ErrorTypeRateLimit         = "rate_limit"
	ErrorTypeNetwork           = "network_error"
	ErrorTypeGas               = "gas_error"
	ErrorTypeNonce             = "nonce_error"
	ErrorTypeInsufficientFunds = "insufficient_funds"
	ErrorTypeReverted          = "reverted"
	ErrorTypeTimeout           = "timeout"
	ErrorTypeInvalidIntent     = "invalid_intent"
	ErrorTypeUnknown           = "unknown_error"
)

// classifyError maps an RPC or contract error onto an error type. Matching is on
// message text because providers report these conditions as plain strings.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "429"),
		strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "in-flight transaction limit"),
		strings.Contains(errStr, "exceeded the quota"):
		return ErrorTypeRateLimit

	case strings.Contains(errStr, "execution reverted"):
		return ErrorTypeSimulationRevert

	case strings.Contains(errStr, "timed out waiting for confirmation"):
		return ErrorTypeTimeout

	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "context deadline exceeded"),
		strings.Contains(errStr, "timed out"),
		strings.Contains(errStr, "no response"),
		strings.Contains(errStr, "eof"):
		return ErrorTypeNetwork

	case strings.Contains(errStr, "gas required exceeds allowance"),
		strings.Contains(errStr, "insufficient funds for gas"),
		strings.Contains(errStr, "gas price too low"),
		strings.Contains(errStr, "gas price exceeds"):
		return ErrorTypeGas

	case strings.Contains(errStr, "nonce too low"),
		strings.Contains(errStr, "nonce too high"),
		strings.Contains(errStr, "replacement transaction underpriced"):
		return ErrorTypeNonce

	case strings.Contains(errStr, "insufficient balance"),
		strings.Contains(errStr, "insufficient funds"):
		return ErrorTypeInsufficientFunds
	}

	return ErrorTypeUnknown
}

// tripsBreaker reports whether an error type indicates the RPC provider, not the transaction, is at fault.
func tripsBreaker(errorType string) bool {
	return errorType == ErrorTypeRateLimit || errorType == ErrorTypeNetwork
}
