package filestore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/roach88/tally/internal/ledger"
)

// StorageName identifies file snapshots in SnapshotMeta.Storage.
const StorageName = "json_file"

// DefaultLockWait is how long an operation waits for another session to
// release the document before failing with a transient error.
const DefaultLockWait = 2 * time.Second

const lockPollInterval = 10 * time.Millisecond

// ErrLocked is the cause of the transient error returned when another
// session holds the document lock for longer than the lock wait.
var ErrLocked = errors.New("ledger file is locked by another session")

// Store keeps the ledger in a JSON file.
//
// Every operation takes an exclusive lock on path+".lock", reads the
// document, and for mutations writes it back before releasing the lock.
// Several Stores, in one process or many, can share a file.
type Store struct {
	path     string
	now      func() time.Time
	lockWait time.Duration

	mu   sync.Mutex
	lock *flock.Flock

	// Set only on the handle passed to an Atomically callback.
	st   *state
	inTx bool
}

var (
	_ ledger.Substrate   = (*Store)(nil)
	_ ledger.Atomic      = (*Store)(nil)
	_ ledger.Snapshotter = (*Store)(nil)
	_ ledger.RecordStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLockWait sets how long to wait for the document lock.
// Zero means a single attempt. Default: DefaultLockWait.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		s.lockWait = d
	}
}

// Open checks the document at path and returns a Store for it. A missing
// file is an empty ledger; the file is first written by the first mutation.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		now:      time.Now,
		lockWait: DefaultLockWait,
		lock:     flock.New(path + ".lock"),
	}
	for _, opt := range opts {
		opt(s)
	}

	err := s.withLock(context.Background(), func() error {
		_, err := s.readState()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close is a no-op; the document lock is held only during an operation.
func (s *Store) Close() error {
	return nil
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// withLock runs fn holding the handle mutex and the document lock.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Unlock()
	return fn()
}

// acquire takes the document lock, polling for up to lockWait.
func (s *Store) acquire(ctx context.Context) error {
	ok, err := s.lock.TryLock()
	if err == nil && !ok && s.lockWait > 0 {
		wait, cancel := context.WithTimeout(ctx, s.lockWait)
		defer cancel()
		ok, err = s.lock.TryLockContext(wait, lockPollInterval)
	}
	if ok {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return classify("lock "+s.lock.Path(), err)
	}
	return ledger.NewTransient("lock "+s.lock.Path(), ErrLocked)
}

// readState loads the document. The caller holds the document lock.
func (s *Store) readState() (*state, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return newState(), nil
	}
	if err != nil {
		return nil, classify("open "+s.path, err)
	}
	defer f.Close()

	var snap ledger.Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if snap.Meta.Version > ledger.SnapshotVersion {
		return nil, fmt.Errorf("%s: snapshot version %d is newer than supported version %d", s.path, snap.Meta.Version, ledger.SnapshotVersion)
	}
	return fromSnapshot(snap), nil
}

// read runs fn against the current document.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if s.inTx {
		return fn(s.st)
	}
	return s.withLock(ctx, func() error {
		st, err := s.readState()
		if err != nil {
			return err
		}
		return fn(st)
	})
}

// mutate applies fn to the current document and saves it. If fn or the save
// fails, the file is untouched. Inside a transaction the change is applied
// to the transaction's state and saved on commit.
func (s *Store) mutate(ctx context.Context, fn func(st *state) error) error {
	if s.inTx {
		return fn(s.st)
	}
	return s.withLock(ctx, func() error {
		st, err := s.readState()
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		return s.save(st)
	})
}

// Atomically runs fn against one loaded copy of the document and saves the
// copy, with one file write, only if fn succeeds. The document lock is held
// throughout.
func (s *Store) Atomically(ctx context.Context, fn func(tx ledger.Substrate) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.withLock(ctx, func() error {
		st, err := s.readState()
		if err != nil {
			return err
		}
		tx := &Store{
			path: s.path,
			now:  s.now,
			st:   st,
			inTx: true,
		}
		if err := fn(tx); err != nil {
			return err
		}
		return s.save(tx.st)
	})
}

// save writes st to a temporary file next to path and renames it over path.
func (s *Store) save(st *state) (err error) {
	snap := st.snapshot()
	snap.Meta = ledger.SnapshotMeta{
		Storage:   StorageName,
		Version:   ledger.SnapshotVersion,
		Timestamp: s.now().UTC(),
	}

	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return classify("create temp file", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return classify("sync "+tmp, err)
	}
	if err := f.Close(); err != nil {
		return classify("close "+tmp, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return classify("chmod "+tmp, err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return classify("replace "+s.path, err)
	}
	return nil
}

// classify marks busy or would-block file errors as transient.
func classify(op string, err error) error {
	if errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return ledger.NewTransient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Accounts

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	err := s.mutate(ctx, func(st *state) error {
		if _, ok := st.accounts[a.Name]; ok {
			return ledger.NewDuplicateAccount(a.Name)
		}
		now := s.now().UTC()
		a.Balance = a.OpeningBalance
		a.Version = 0
		a.CreatedAt = now
		a.UpdatedAt = now
		st.accounts[a.Name] = a
		st.appendEntry(ledger.Entry{
			Account:      a.Name,
			Op:           ledger.OpOpen,
			Amount:       a.OpeningBalance,
			BalanceAfter: a.OpeningBalance,
			At:           now,
		})
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, name string) (ledger.Account, error) {
	var a ledger.Account
	err := s.read(ctx, func(st *state) error {
		var ok bool
		if a, ok = st.accounts[name]; !ok {
			return ledger.NewNotFound(name)
		}
		return nil
	})
	return a, err
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	var accounts []ledger.Account
	err := s.read(ctx, func(st *state) error {
		accounts = st.snapshot().Accounts
		return nil
	})
	return accounts, err
}

func (s *Store) DeleteAccount(ctx context.Context, name string) error {
	return s.mutate(ctx, func(st *state) error {
		if _, ok := st.accounts[name]; !ok {
			return ledger.NewNotFound(name)
		}
		delete(st.accounts, name)
		return nil
	})
}

// UpdateBalance applies one entry. The document lock makes the
// read-modify-write atomic across handles and processes, so no
// compare-and-swap failure can occur.
func (s *Store) UpdateBalance(ctx context.Context, name string, apply ledger.ApplyFunc) (ledger.Account, ledger.Entry, error) {
	var (
		acct  ledger.Account
		entry ledger.Entry
	)
	err := s.mutate(ctx, func(st *state) error {
		current, ok := st.accounts[name]
		if !ok {
			return ledger.NewNotFound(name)
		}

		var err error
		if entry, err = apply(current); err != nil {
			return err
		}

		now := s.now().UTC()
		entry.Account = name
		entry.At = now
		entry = st.appendEntry(entry)

		acct = current
		acct.Balance = entry.BalanceAfter
		acct.Version++
		acct.UpdatedAt = now
		st.accounts[name] = acct
		return nil
	})
	if err != nil {
		return ledger.Account{}, ledger.Entry{}, err
	}
	return acct, entry, nil
}

func (st *state) appendEntry(e ledger.Entry) ledger.Entry {
	e.Seq = st.nextSeq
	st.nextSeq++
	st.entries = append(st.entries, e)
	return e
}

func (s *Store) ListEntries(ctx context.Context, name string) ([]ledger.Entry, error) {
	entries := []ledger.Entry{}
	err := s.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if name == "" || e.Account == name {
				entries = append(entries, e)
			}
		}
		return nil
	})
	return entries, err
}

// Journal

func (s *Store) AppendVoucher(ctx context.Context, v ledger.Voucher) (ledger.Voucher, error) {
	err := s.mutate(ctx, func(st *state) error {
		for _, prior := range st.vouchers {
			if v.ReversalOf != 0 && prior.ReversalOf == v.ReversalOf {
				return ledger.NewAlreadyReversed(v.ReversalOf, prior.ID)
			}
			if prior.Ref == v.Ref {
				return &ledger.Error{
					Code:    ledger.CodeDuplicate,
					Message: "voucher already committed",
					Details: map[string]string{"voucher_ref": v.Ref},
				}
			}
		}
		v.ID = st.nextID
		st.nextID++
		v.CommittedAt = s.now().UTC()
		st.vouchers = append(st.vouchers, v)
		return nil
	})
	if err != nil {
		return ledger.Voucher{}, err
	}
	return v, nil
}

func (s *Store) GetVoucher(ctx context.Context, id int64) (ledger.Voucher, error) {
	var v ledger.Voucher
	err := s.read(ctx, func(st *state) error {
		i, found := slices.BinarySearchFunc(st.vouchers, id, func(v ledger.Voucher, id int64) int {
			return cmp.Compare(v.ID, id)
		})
		if !found {
			return ledger.NewVoucherNotFound(id)
		}
		v = st.vouchers[i]
		return nil
	})
	return v, err
}

func (s *Store) FindReversal(ctx context.Context, id int64) (ledger.Voucher, error) {
	var v ledger.Voucher
	err := s.read(ctx, func(st *state) error {
		for _, prior := range st.vouchers {
			if id != 0 && prior.ReversalOf == id {
				v = prior
				return nil
			}
		}
		return ledger.NewNotReversed(id)
	})
	return v, err
}

func (s *Store) ListVouchers(ctx context.Context) ([]ledger.Voucher, error) {
	var vouchers []ledger.Voucher
	err := s.read(ctx, func(st *state) error {
		vouchers = slices.Clone(st.vouchers)
		return nil
	})
	if vouchers == nil {
		vouchers = []ledger.Voucher{}
	}
	return vouchers, err
}

// Records

func (s *Store) CreateRecord(ctx context.Context, r ledger.Record) error {
	return s.mutate(ctx, func(st *state) error {
		id := recordID{r.Kind, r.Key}
		if _, ok := st.records[id]; ok {
			return ledger.NewDuplicateRecord(r.Kind, r.Key)
		}
		st.records[id] = r
		return nil
	})
}

func (s *Store) UpdateRecord(ctx context.Context, r ledger.Record) error {
	return s.mutate(ctx, func(st *state) error {
		id := recordID{r.Kind, r.Key}
		if _, ok := st.records[id]; !ok {
			return ledger.NewRecordNotFound(r.Kind, r.Key)
		}
		st.records[id] = r
		return nil
	})
}

func (s *Store) GetRecord(ctx context.Context, kind, key string) (ledger.Record, error) {
	var r ledger.Record
	err := s.read(ctx, func(st *state) error {
		var ok bool
		if r, ok = st.records[recordID{kind, key}]; !ok {
			return ledger.NewRecordNotFound(kind, key)
		}
		return nil
	})
	return r, err
}

func (s *Store) ListRecords(ctx context.Context, kind string) ([]ledger.Record, error) {
	records := []ledger.Record{}
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.snapshot().Records {
			if r.Kind == kind {
				records = append(records, r)
			}
		}
		return nil
	})
	return records, err
}

func (s *Store) DeleteRecord(ctx context.Context, kind, key string) error {
	return s.mutate(ctx, func(st *state) error {
		id := recordID{kind, key}
		if _, ok := st.records[id]; !ok {
			return ledger.NewRecordNotFound(kind, key)
		}
		delete(st.records, id)
		return nil
	})
}

// Snapshots

func (s *Store) Snapshot(ctx context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	err := s.read(ctx, func(st *state) error {
		snap = st.snapshot()
		return nil
	})
	snap.Meta = ledger.SnapshotMeta{
		Storage:   StorageName,
		Version:   ledger.SnapshotVersion,
		Timestamp: s.now().UTC(),
	}
	return snap, err
}

func (s *Store) Restore(ctx context.Context, snap ledger.Snapshot) error {
	if snap.Meta.Version > ledger.SnapshotVersion {
		return ledger.NewValidationError("snapshot version %d is newer than supported version %d", snap.Meta.Version, ledger.SnapshotVersion)
	}
	return s.mutate(ctx, func(st *state) error {
		if !st.empty() {
			return ledger.NewValidationError("restore requires an empty store")
		}
		*st = *fromSnapshot(snap)
		return nil
	})
}
