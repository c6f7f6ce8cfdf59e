package events

import (
	"encoding/json"
	"time"
)

const (
	KindTransactionSaved   = "transaction.saved"
	KindTransactionDeleted = "transaction.deleted"
	KindImportCommitted    = "import.committed"
)

// LedgerEvent is the lightweight message published after a committed write.
// It carries identifiers and the posted amount; consumers fetch anything
// more from the store.
type LedgerEvent struct {
	Kind          string    `json:"kind"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountID     string    `json:"account_id,omitempty"`
	BatchID       string    `json:"batch_id,omitempty"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ToJSON converts the event to JSON bytes.
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
