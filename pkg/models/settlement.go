package models

// SettlementResult is the outcome of one on-chain execution attempt.
type SettlementResult struct {
	IntentID  string `json:"intentId"`
	Success   bool   `json:"success"`
	TxHash    string `json:"txHash,omitempty"`
	AmountOut string `json:"amountOut,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
}

// MatchOutcome is returned by the order book for every submission.
type MatchOutcome struct {
	Matched     bool               `json:"matched"`
	Intents     []Intent           `json:"intents,omitempty"`
	Settlements []SettlementResult `json:"settlements,omitempty"`
}
