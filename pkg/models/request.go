package models

import "time"

// SubmitIntentRequest is the inbound submission payload.
type SubmitIntentRequest struct {
	ID           string `json:"id"`
	UserAddress  string `json:"userAddress"`
	TokenIn      string `json:"tokenIn"`
	TokenOut     string `json:"tokenOut"`
	AmountIn     string `json:"amountIn"`
	MinAmountOut string `json:"minAmountOut"`
}

// ToIntent builds a PENDING intent from the request.
func (r SubmitIntentRequest) ToIntent(now time.Time) Intent {
	return Intent{
		ID:           r.ID,
		UserAddress:  r.UserAddress,
		TokenIn:      r.TokenIn,
		TokenOut:     r.TokenOut,
		AmountIn:     r.AmountIn,
		MinAmountOut: r.MinAmountOut,
		Status:       StatusPending,
		CreatedAt:    now,
	}
}

// SubmitIntentResponse tells the caller whether the intent is queued, matched or concluded.
type SubmitIntentResponse struct {
	Accepted    bool               `json:"accepted"`
	IntentID    string             `json:"intentId"`
	Status      IntentStatus       `json:"status"`
	Matched     bool               `json:"matched"`
	MatchID     string             `json:"matchId,omitempty"`
	Intents     []Intent           `json:"intents,omitempty"`
	Settlements []SettlementResult `json:"settlements,omitempty"`
	Message     string             `json:"message"`
}

// IntentSummary is the pending-list view of an intent.
type IntentSummary struct {
	ID          string       `json:"id"`
	UserAddress string       `json:"userAddress"`
	TokenIn     string       `json:"tokenIn"`
	TokenOut    string       `json:"tokenOut"`
	AmountIn    string       `json:"amountIn"`
	Status      IntentStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Summary returns the pending-list view of i.
func (i Intent) Summary() IntentSummary {
	return IntentSummary{
		ID:          i.ID,
		UserAddress: i.UserAddress,
		TokenIn:     i.TokenIn,
		TokenOut:    i.TokenOut,
		AmountIn:    i.AmountIn,
		Status:      i.Status,
		CreatedAt:   i.CreatedAt,
	}
}
