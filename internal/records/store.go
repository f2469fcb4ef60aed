package records

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/retry"
)

// Backend persists records. Both internal/store and internal/filestore
// implement it.
type Backend interface {
	ledger.RecordStore
}

// Store is a typed view over one record kind. Every backend call runs under
// the store's retry policy.
type Store[T any] struct {
	backend Backend
	kind    string
	policy  retry.Policy
}

// Option configures a Store.
type Option func(*options)

type options struct {
	policy retry.Policy
}

// WithRetryPolicy sets the policy wrapped around every backend call.
// Default: retry.Default() (3 attempts, 1s apart).
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// New returns a Store for records of the given kind.
func New[T any](backend Backend, kind string, opts ...Option) *Store[T] {
	o := options{policy: retry.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{backend: backend, kind: kind, policy: o.policy}
}

// Kind returns the record kind this store reads and writes.
func (s *Store[T]) Kind() string {
	return s.kind
}

// Create inserts v under key. Fails with ledger.CodeDuplicate if key exists.
func (s *Store[T]) Create(ctx context.Context, key string, v T) error {
	r, err := s.encode(key, v)
	if err != nil {
		return err
	}
	return s.policy.Do(ctx, "create "+s.kind, func(ctx context.Context) error {
		return s.backend.CreateRecord(ctx, r)
	})
}

// Update replaces the record under key. Fails with ledger.CodeNotFound if key
// is absent.
func (s *Store[T]) Update(ctx context.Context, key string, v T) error {
	r, err := s.encode(key, v)
	if err != nil {
		return err
	}
	return s.policy.Do(ctx, "update "+s.kind, func(ctx context.Context) error {
		return s.backend.UpdateRecord(ctx, r)
	})
}

// Get returns the record under key.
func (s *Store[T]) Get(ctx context.Context, key string) (T, error) {
	var v T
	key, err := normalizeKey(s.kind, key)
	if err != nil {
		return v, err
	}
	r, err := retry.DoValue(ctx, s.policy, "get "+s.kind, func(ctx context.Context) (ledger.Record, error) {
		return s.backend.GetRecord(ctx, s.kind, key)
	})
	if err != nil {
		return v, err
	}
	return s.decode(r)
}

// List returns every record ordered by key.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	rs, err := retry.DoValue(ctx, s.policy, "list "+s.kind, func(ctx context.Context) ([]ledger.Record, error) {
		return s.backend.ListRecords(ctx, s.kind)
	})
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rs))
	for _, r := range rs {
		v, err := s.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Delete removes the record under key.
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(s.kind, key)
	if err != nil {
		return err
	}
	return s.policy.Do(ctx, "delete "+s.kind, func(ctx context.Context) error {
		return s.backend.DeleteRecord(ctx, s.kind, key)
	})
}

func (s *Store[T]) encode(key string, v T) (ledger.Record, error) {
	key, err := normalizeKey(s.kind, key)
	if err != nil {
		return ledger.Record{}, err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("encode %s %q: %w", s.kind, key, err)
	}
	return ledger.Record{Kind: s.kind, Key: key, Body: body}, nil
}

func (s *Store[T]) decode(r ledger.Record) (T, error) {
	var v T
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return v, fmt.Errorf("decode %s %q: %w", r.Kind, r.Key, err)
	}
	return v, nil
}

func normalizeKey(kind, key string) (string, error) {
	k := ledger.NormalizeName(key)
	if k == "" {
		return "", ledger.NewValidationError("%s key is required", kind)
	}
	return k, nil
}
