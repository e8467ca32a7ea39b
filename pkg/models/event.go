package models

import "time"

// EventType identifies one lifecycle notification.
type EventType string

const (
	EventConnected          EventType = "CONNECTED"
	EventMatched            EventType = "MATCHED"
	EventSettlingStarted    EventType = "SETTLING_STARTED"
	EventTxSubmitted        EventType = "TX_SUBMITTED"
	EventTxConfirming       EventType = "TX_CONFIRMING"
	EventTxConfirmed        EventType = "TX_CONFIRMED"
	EventENSUpdating        EventType = "ENS_UPDATING"
	EventENSConfirmed       EventType = "ENS_CONFIRMED"
	EventSettlementComplete EventType = "SETTLEMENT_COMPLETE"
	EventSettlementFailed   EventType = "SETTLEMENT_FAILED"
	EventWaitingRateLimit   EventType = "WAITING_RATE_LIMIT"
)

// EventData is the optional payload of a SettlementEvent.
type EventData struct {
	TxHash               string `json:"txHash,omitempty"`
	Message              string `json:"message,omitempty"`
	Error                string `json:"error,omitempty"`
	CounterpartyIntentID string `json:"counterpartyIntentId,omitempty"`
	Confirmations        int    `json:"confirmations,omitempty"`
	WaitTimeMs           int64  `json:"waitTimeMs,omitempty"`
}

// SettlementEvent is an immutable notification about one intent. Timestamp is unix milliseconds.
type SettlementEvent struct {
	Type      EventType  `json:"type"`
	IntentID  string     `json:"intentId"`
	Timestamp int64      `json:"timestamp"`
	Data      *EventData `json:"data,omitempty"`
}

// Time returns the event timestamp as a time.Time.
func (e SettlementEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
