package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ledger"
)

func seedAccount(t *testing.T, s *Store, name, opening string) ledger.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), ledger.Account{
		Name:           name,
		Type:           "asset",
		OpeningBalance: dec(opening),
	})
	require.NoError(t, err)
	return a
}

func seedVoucher(t *testing.T, s *Store) ledger.Voucher {
	t.Helper()
	seedAccount(t, s, "Cash", "100")
	seedAccount(t, s, "Bank", "0")
	v, err := s.AppendVoucher(context.Background(), ledger.Voucher{
		Ref:         "ref-1",
		Type:        "payment",
		Amount:      dec("25.50"),
		Source:      "Cash",
		Destination: "Bank",
	})
	require.NoError(t, err)
	return v
}

// credit returns an ApplyFunc adding amount to the balance.
func credit(amount string) ledger.ApplyFunc {
	return func(current ledger.Account) (ledger.Entry, error) {
		a := dec(amount)
		return ledger.Entry{
			Op:           ledger.OpCredit,
			Amount:       a,
			BalanceAfter: current.Balance.Add(a),
		}, nil
	}
}

func TestCreateAccount_WritesOpeningEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := seedAccount(t, s, "Cash", "100.25")
	assert.Equal(t, "Cash", a.Name)
	assert.True(t, a.Balance.Equal(dec("100.25")))
	assert.Equal(t, int64(0), a.Version)
	assert.Equal(t, testEpoch, a.CreatedAt)

	entries, err := s.ListEntries(ctx, "Cash")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.OpOpen, entries[0].Op)
	assert.Equal(t, "100.25", entries[0].BalanceAfter.String())
	assert.Equal(t, int64(1), entries[0].Seq)
}

func TestCreateAccount_Duplicate(t *testing.T) {
	s := createTestStore(t)
	seedAccount(t, s, "Cash", "0")

	_, err := s.CreateAccount(context.Background(), ledger.Account{Name: "Cash", OpeningBalance: dec("5")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrDuplicate))

	// Names are compared byte-wise.
	_, err = s.CreateAccount(context.Background(), ledger.Account{Name: "cash", OpeningBalance: dec("5")})
	assert.NoError(t, err)
}

func TestDeleteAccount_KeepsHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "Cash", "10")

	require.NoError(t, s.DeleteAccount(ctx, "Cash"))

	_, err := s.GetAccount(ctx, "Cash")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))

	entries, err := s.ListEntries(ctx, "Cash")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	err = s.DeleteAccount(ctx, "Cash")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestUpdateBalance_AppliesAndBumpsVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "Cash", "100")

	acct, entry, err := s.UpdateBalance(ctx, "Cash", credit("50"))
	require.NoError(t, err)

	assert.Equal(t, "150", acct.Balance.String())
	assert.Equal(t, int64(1), acct.Version)
	assert.Equal(t, "Cash", entry.Account)
	assert.Equal(t, int64(2), entry.Seq)
	assert.Equal(t, acct.UpdatedAt, entry.At)

	stored, err := s.GetAccount(ctx, "Cash")
	require.NoError(t, err)
	assert.Equal(t, "150", stored.Balance.String())
	assert.Equal(t, int64(1), stored.Version)
}

func TestUpdateBalance_ApplyErrorWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "Cash", "100")

	refuse := func(ledger.Account) (ledger.Entry, error) {
		return ledger.Entry{}, ledger.ErrInsufficientFunds
	}
	_, _, err := s.UpdateBalance(ctx, "Cash", refuse)
	assert.True(t, errors.Is(err, ledger.ErrInsufficientFunds))

	stored, err := s.GetAccount(ctx, "Cash")
	require.NoError(t, err)
	assert.Equal(t, "100", stored.Balance.String())

	entries, err := s.ListEntries(ctx, "Cash")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpdateBalance_MissingAccount(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.UpdateBalance(context.Background(), "Ghost", credit("1"))
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestUpdateBalance_ConcurrentCreditsAllLand(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "Cash", "0")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.UpdateBalance(ctx, "Cash", credit("1.5"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := s.GetAccount(ctx, "Cash")
	require.NoError(t, err)
	assert.Equal(t, "30", stored.Balance.String())
	assert.Equal(t, int64(n), stored.Version)
}

func TestAppendVoucher_AssignsIDsInOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := seedVoucher(t, s)
	second, err := s.AppendVoucher(ctx, ledger.Voucher{
		Ref: "ref-2", Type: "receipt", Amount: dec("1"), Source: "Bank", Destination: "Cash",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.True(t, second.CommittedAt.After(first.CommittedAt))
}

func TestAppendVoucher_DuplicateRef(t *testing.T) {
	s := createTestStore(t)
	v := seedVoucher(t, s)

	v.ID = 0
	_, err := s.AppendVoucher(context.Background(), v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrDuplicate))
}

func TestAppendVoucher_SecondReversalRejected(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	orig := seedVoucher(t, s)

	_, err := s.FindReversal(ctx, orig.ID)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))

	reversal := ledger.Voucher{Ref: "ref-2", Type: "payment", Amount: orig.Amount, Source: "Bank", Destination: "Cash", ReversalOf: orig.ID}
	first, err := s.AppendVoucher(ctx, reversal)
	require.NoError(t, err)

	found, err := s.FindReversal(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	reversal.Ref = "ref-3"
	_, err = s.AppendVoucher(ctx, reversal)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrDuplicate))
	assert.Contains(t, err.Error(), "voucher already reversed")
	assert.Contains(t, err.Error(), "voucher_id=1")

	// Ordinary vouchers all carry reversal_of = 0 and never collide.
	for _, ref := range []string{"ref-4", "ref-5"} {
		_, err := s.AppendVoucher(ctx, ledger.Voucher{Ref: ref, Type: "payment", Amount: dec("1"), Source: "Cash", Destination: "Bank"})
		require.NoError(t, err)
	}
}

func TestAtomically_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "Cash", "100")

	boom := errors.New("boom")
	err := s.Atomically(ctx, func(tx ledger.Substrate) error {
		if _, _, err := tx.UpdateBalance(ctx, "Cash", credit("50")); err != nil {
			return err
		}
		if _, err := tx.AppendVoucher(ctx, ledger.Voucher{Ref: "r", Type: "t", Amount: dec("50"), Source: "X", Destination: "Cash"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := s.GetAccount(ctx, "Cash")
	require.NoError(t, err)
	assert.Equal(t, "100", stored.Balance.String())

	vouchers, err := s.ListVouchers(ctx)
	require.NoError(t, err)
	assert.Empty(t, vouchers)
}

func TestAtomically_Commits(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "Cash", "100")

	err := s.Atomically(ctx, func(tx ledger.Substrate) error {
		_, _, err := tx.UpdateBalance(ctx, "Cash", credit("50"))
		return err
	})
	require.NoError(t, err)

	stored, err := s.GetAccount(ctx, "Cash")
	require.NoError(t, err)
	assert.Equal(t, "150", stored.Balance.String())
}

func TestRecords_CRUD(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := ledger.Record{Kind: "bill", Key: "rent", Body: []byte(`{"amount":"900"}`)}
	require.NoError(t, s.CreateRecord(ctx, rec))

	err := s.CreateRecord(ctx, rec)
	assert.True(t, errors.Is(err, ledger.ErrDuplicate))

	rec.Body = []byte(`{"amount":"950"}`)
	require.NoError(t, s.UpdateRecord(ctx, rec))

	got, err := s.GetRecord(ctx, "bill", "rent")
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"950"}`, string(got.Body))

	err = s.UpdateRecord(ctx, ledger.Record{Kind: "bill", Key: "water", Body: []byte(`{}`)})
	assert.True(t, errors.Is(err, ledger.ErrNotFound))

	require.NoError(t, s.DeleteRecord(ctx, "bill", "rent"))
	_, err = s.GetRecord(ctx, "bill", "rent")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))

	err = s.DeleteRecord(ctx, "bill", "rent")
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}
