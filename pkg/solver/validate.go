package solver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

// ErrValidation marks a malformed submission. Nothing is mutated when it is returned.
var ErrValidation = errors.New("invalid intent")

// Validator checks submissions before they reach the order book.
type Validator struct {
	// Tokens holds the two tradable token identifiers, lower-cased.
	Tokens [2]string
}

// NewValidator accepts the native asset and secondaryToken as the only tradable pair.
func NewValidator(secondaryToken string) Validator {
	return Validator{Tokens: [2]string{
		strings.ToLower(models.NativeToken),
		strings.ToLower(secondaryToken),
	}}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Validate rejects empty fields, malformed addresses, unknown tokens and
// amounts that are not decimal integers fitting in 256 bits.
func (v Validator) Validate(req models.SubmitIntentRequest) error {
	fields := []struct {
		name  string
		value string
	}{
		{"id", req.ID},
		{"userAddress", req.UserAddress},
		{"tokenIn", req.TokenIn},
		{"tokenOut", req.TokenOut},
		{"amountIn", req.AmountIn},
		{"minAmountOut", req.MinAmountOut},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return invalid("%s is required", f.name)
		}
	}

	if len(req.UserAddress) != 42 || !strings.HasPrefix(req.UserAddress, "0x") || !common.IsHexAddress(req.UserAddress) {
		return invalid("userAddress must be a 0x-prefixed 42-character hex address")
	}

	if !v.known(req.TokenIn) {
		return invalid("unsupported tokenIn %s", req.TokenIn)
	}
	if !v.known(req.TokenOut) {
		return invalid("unsupported tokenOut %s", req.TokenOut)
	}
	if models.SameToken(req.TokenIn, req.TokenOut) {
		return invalid("tokenIn and tokenOut must differ")
	}

	amountIn, err := uint256.FromDecimal(req.AmountIn)
	if err != nil {
		return invalid("amountIn %q: %v", req.AmountIn, err)
	}
	if amountIn.IsZero() {
		return invalid("amountIn must be greater than 0")
	}
	if _, err := uint256.FromDecimal(req.MinAmountOut); err != nil {
		return invalid("minAmountOut %q: %v", req.MinAmountOut, err)
	}
	return nil
}

func (v Validator) known(token string) bool {
	t := strings.ToLower(token)
	return t == v.Tokens[0] || t == v.Tokens[1]
}
