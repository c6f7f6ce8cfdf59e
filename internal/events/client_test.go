package events

import (
	"context"
	"testing"
	"time"
)

func TestNilClientIsInert(t *testing.T) {
	var c *Client

	event := &LedgerEvent{Kind: KindTransactionSaved, TransactionID: "txn-1"}
	if err := c.Publish(context.Background(), event); err != nil {
		t.Errorf("Publish on nil client = %v, want nil", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil client = %v, want nil", err)
	}
}

func TestLedgerEvent_JSON(t *testing.T) {
	occurred := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	event := &LedgerEvent{
		Kind:          KindTransactionSaved,
		TransactionID: "txn-1",
		AccountID:     "acc-1",
		AmountMinor:   -2500,
		Currency:      "PHP",
		OccurredAt:    occurred,
	}

	jsonBytes, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := LedgerEventFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("LedgerEventFromJSON() error = %v", err)
	}

	if parsed.Kind != event.Kind {
		t.Errorf("Parsed Kind = %v, want %v", parsed.Kind, event.Kind)
	}
	if parsed.TransactionID != event.TransactionID || parsed.AccountID != event.AccountID {
		t.Errorf("Parsed identifiers = %s/%s, want %s/%s",
			parsed.TransactionID, parsed.AccountID, event.TransactionID, event.AccountID)
	}
	if parsed.AmountMinor != event.AmountMinor || parsed.Currency != event.Currency {
		t.Errorf("Parsed amount = %d %s, want %d %s",
			parsed.AmountMinor, parsed.Currency, event.AmountMinor, event.Currency)
	}
	if !parsed.OccurredAt.Equal(event.OccurredAt) {
		t.Errorf("Parsed OccurredAt = %v, want %v", parsed.OccurredAt, event.OccurredAt)
	}
}

func TestLedgerEvent_InvalidJSON(t *testing.T) {
	if _, err := LedgerEventFromJSON([]byte(`{"amount_minor": "lots"}`)); err == nil {
		t.Error("LedgerEventFromJSON() should fail with invalid JSON")
	}
}
