package ledger

import (
	"context"
	"encoding/json"
)

// Record is one keyed document of an auxiliary record collection
// (inventory, bills, budgets). The body is opaque to the substrate.
type Record struct {
	Kind string          `json:"kind"`
	Key  string          `json:"key"`
	Body json.RawMessage `json:"body"`
}

// RecordStore is the substrate side of internal/records.
type RecordStore interface {
	// CreateRecord fails with CodeDuplicate if (kind, key) exists.
	CreateRecord(ctx context.Context, r Record) error

	// UpdateRecord fails with CodeNotFound if (kind, key) is absent.
	UpdateRecord(ctx context.Context, r Record) error

	GetRecord(ctx context.Context, kind, key string) (Record, error)

	// ListRecords returns the records of kind ordered by key ascending.
	ListRecords(ctx context.Context, kind string) ([]Record, error)

	DeleteRecord(ctx context.Context, kind, key string) error
}

// NewRecordNotFound creates a CodeNotFound error for a record.
func NewRecordNotFound(kind, key string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: kind + " not found",
		Details: map[string]string{"key": key},
	}
}

// NewDuplicateRecord creates a CodeDuplicate error for a record.
func NewDuplicateRecord(kind, key string) *Error {
	return &Error{
		Code:    CodeDuplicate,
		Message: kind + " already exists",
		Details: map[string]string{"key": key},
	}
}
