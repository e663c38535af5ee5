package models

import (
	"encoding/json"
	"fmt"
)

const (
	EventConsolidationRequired   = "ConsolidationRequired"
	EventLedgerAddressGeneration = "LedgerAddressGeneration"
	EventNewOutput               = "NewOutput"
	EventSpentOutput             = "SpentOutput"
	EventTransactionInclusion    = "TransactionInclusion"
	EventTransactionProgress     = "TransactionProgress"
)

var knownEventTypes = map[string]struct{}{
	EventConsolidationRequired:   {},
	EventLedgerAddressGeneration: {},
	EventNewOutput:               {},
	EventSpentOutput:             {},
	EventTransactionInclusion:    {},
	EventTransactionProgress:     {},
}

func IsKnownEventType(eventType string) bool {
	_, ok := knownEventTypes[eventType]
	return ok
}

// Event is what listeners receive, serialized, for every wallet notification.
type Event struct {
	AccountIndex uint32      `json:"accountIndex"`
	Event        WalletEvent `json:"event"`
}

// WalletEvent carries the event type tag and its type specific fields.
type WalletEvent struct {
	Type          string      `json:"type"`
	Output        *OutputData `json:"output,omitempty"`
	Address       string      `json:"address,omitempty"`
	TransactionID string      `json:"transactionId,omitempty"`
	Inclusion     string      `json:"inclusionState,omitempty"`
	Progress      string      `json:"progress,omitempty"`
}

func ParseEvent(text string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(text), &evt); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if !IsKnownEventType(evt.Event.Type) {
		return Event{}, fmt.Errorf("decode event: unknown type %q", evt.Event.Type)
	}
	return evt, nil
}
