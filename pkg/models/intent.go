package models

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

// NativeToken is the zero address used to denote the chain's native asset.
const NativeToken = "0x0000000000000000000000000000000000000000"

// IntentStatus is the settlement lifecycle state of an intent.
type IntentStatus string

const (
	StatusPending  IntentStatus = "PENDING"
	StatusMatched  IntentStatus = "MATCHED"
	StatusSettling IntentStatus = "SETTLING"
	StatusSettled  IntentStatus = "SETTLED"
	StatusFailed   IntentStatus = "FAILED"
)

// ErrInvalidTransition is returned when a status change would move an intent backwards or skip a state.
var ErrInvalidTransition = errors.New("invalid status transition")

var nextStatuses = map[IntentStatus][]IntentStatus{
	StatusPending:  {StatusMatched},
	StatusMatched:  {StatusSettling},
	StatusSettling: {StatusSettled, StatusFailed},
}

// CanTransitionTo reports whether next directly follows s.
func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	for _, candidate := range nextStatuses[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s IntentStatus) IsTerminal() bool {
	return s == StatusSettled || s == StatusFailed
}

// Intent represents a user's request to swap AmountIn of TokenIn for at least MinAmountOut of TokenOut
type Intent struct {
	ID           string       `json:"id"`
	UserAddress  string       `json:"userAddress"`
	TokenIn      string       `json:"tokenIn"`
	TokenOut     string       `json:"tokenOut"`
	AmountIn     string       `json:"amountIn"`
	MinAmountOut string       `json:"minAmountOut"`
	Status       IntentStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`

	// Populated once matched
	MatchID         string     `json:"matchId,omitempty"`
	Counterparty    string     `json:"counterparty,omitempty"`
	TxnHash         string     `json:"txnHash,omitempty"`
	AmountOut       string     `json:"amountOut,omitempty"`
	SettlementError string     `json:"settlementError,omitempty"`
	SettledAt       *time.Time `json:"settledAt,omitempty"`
}

// Advance moves the intent to next, refusing any move that is not a forward step.
func (i *Intent) Advance(next IntentStatus) error {
	if !i.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s for intent %s", ErrInvalidTransition, i.Status, next, i.ID)
	}
	i.Status = next
	return nil
}

// IsNativeIn reports whether the intent sells the native asset.
func (i *Intent) IsNativeIn() bool {
	return SameToken(i.TokenIn, NativeToken)
}

// ParseAmount parses a non-negative decimal integer string.
func ParseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
