package journal

import (
	"context"
	"time"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

// Entry is one settled or failed intent.
type Entry struct {
	IntentID  string    `json:"intentId"`
	MatchID   string    `json:"matchId,omitempty"`
	User      string    `json:"user"`
	TokenIn   string    `json:"tokenIn"`
	TokenOut  string    `json:"tokenOut"`
	AmountIn  string    `json:"amountIn"`
	Status    string    `json:"status"`
	TxHash    string    `json:"txHash,omitempty"`
	AmountOut string    `json:"amountOut,omitempty"`
	Error     string    `json:"error,omitempty"`
	SettledAt time.Time `json:"settledAt"`
}

// Journal persists settlement outcomes. Implementations must be safe for concurrent use.
type Journal interface {
	Record(ctx context.Context, entries []Entry) error
	Close()
}

// FromIntents builds entries for intents in a terminal state. Others are skipped.
func FromIntents(intents []models.Intent) []Entry {
	entries := make([]Entry, 0, len(intents))
	for _, in := range intents {
		if !in.Status.IsTerminal() {
			continue
		}
		settledAt := time.Now().UTC()
		if in.SettledAt != nil {
			settledAt = in.SettledAt.UTC()
		}
		entries = append(entries, Entry{
			IntentID:  in.ID,
			MatchID:   in.MatchID,
			User:      in.UserAddress,
			TokenIn:   in.TokenIn,
			TokenOut:  in.TokenOut,
			AmountIn:  in.AmountIn,
			Status:    string(in.Status),
			TxHash:    in.TxnHash,
			AmountOut: in.AmountOut,
			Error:     in.SettlementError,
			SettledAt: settledAt,
		})
	}
	return entries
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, []Entry) error { return nil }
func (Nop) Close()                                {}
