package transactions

import (
	"context"

	"github.com/bryanwahyu/errorhub/internal/domain/textutil"
)

const (
	// MaxSpansBytes caps the serialized span list stored per transaction.
	MaxSpansBytes = 10000

	MaxTransactionIDBytes = 64
	MaxNameBytes          = 512
	MaxOpBytes            = 128
	MaxStatusBytes        = 64
)

// Transaction is an append-only performance record.
type Transaction struct {
	ID            int64  `json:"id" db:"id"`
	ScopeID       int64  `json:"scope_id" db:"scope_id"`
	TransactionID string `json:"transaction_id" db:"transaction_id"`
	Name          string `json:"name,omitempty" db:"name"`
	Op            string `json:"op,omitempty" db:"op"`
	Status        string `json:"status,omitempty" db:"status"`
	// DurationMS is nil unless both start and end timestamps were sent.
	DurationMS *int64 `json:"duration_ms,omitempty" db:"duration_ms"`
	Spans      string `json:"spans,omitempty" db:"spans"`
	Timestamp  int64  `json:"timestamp" db:"occurred_at"`
	CreatedAt  int64  `json:"created_at" db:"created_at"`
}

// TruncateSpans cuts s to MaxSpansBytes without splitting a UTF-8 sequence.
func TruncateSpans(s string) string {
	return textutil.Truncate(s, MaxSpansBytes)
}

// Clamp truncates client supplied fields to their column widths.
func (t *Transaction) Clamp() {
	t.TransactionID = textutil.Truncate(t.TransactionID, MaxTransactionIDBytes)
	t.Name = textutil.Truncate(t.Name, MaxNameBytes)
	t.Op = textutil.Truncate(t.Op, MaxOpBytes)
	t.Status = textutil.Truncate(t.Status, MaxStatusBytes)
	t.Spans = TruncateSpans(t.Spans)
}

// Repository port
type Repository interface {
	SaveTransaction(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, scopeID int64, limit int) ([]*Transaction, error)
}
