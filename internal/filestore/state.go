package filestore

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/tally/internal/ledger"
)

type recordID struct {
	kind, key string
}

// state is the in-memory image of the document.
type state struct {
	accounts map[string]ledger.Account
	entries  []ledger.Entry
	vouchers []ledger.Voucher
	records  map[recordID]ledger.Record
	nextSeq  int64
	nextID   int64
}

func newState() *state {
	return &state{
		accounts: make(map[string]ledger.Account),
		records:  make(map[recordID]ledger.Record),
		nextSeq:  1,
		nextID:   1,
	}
}

func (st *state) empty() bool {
	return len(st.accounts) == 0 && len(st.entries) == 0 && len(st.vouchers) == 0 && len(st.records) == 0
}

// snapshot renders the state in natural order.
func (st *state) snapshot() ledger.Snapshot {
	snap := ledger.Snapshot{
		Accounts: make([]ledger.Account, 0, len(st.accounts)),
		Entries:  slices.Clone(st.entries),
		Vouchers: slices.Clone(st.vouchers),
		Records:  make([]ledger.Record, 0, len(st.records)),
	}
	if snap.Entries == nil {
		snap.Entries = []ledger.Entry{}
	}
	if snap.Vouchers == nil {
		snap.Vouchers = []ledger.Voucher{}
	}

	for _, name := range slices.Sorted(maps.Keys(st.accounts)) {
		snap.Accounts = append(snap.Accounts, st.accounts[name])
	}

	ids := slices.SortedFunc(maps.Keys(st.records), func(a, b recordID) int {
		if c := cmp.Compare(a.kind, b.kind); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	for _, id := range ids {
		snap.Records = append(snap.Records, st.records[id])
	}
	return snap
}

// fromSnapshot rebuilds state from a snapshot, continuing seq and id numbering after
// the highest values present.
func fromSnapshot(snap ledger.Snapshot) *state {
	st := newState()
	for _, a := range snap.Accounts {
		st.accounts[a.Name] = a
	}
	st.entries = slices.Clone(snap.Entries)
	for _, e := range st.entries {
		st.nextSeq = max(st.nextSeq, e.Seq+1)
	}
	st.vouchers = slices.Clone(snap.Vouchers)
	for _, v := range st.vouchers {
		st.nextID = max(st.nextID, v.ID+1)
	}
	for _, r := range snap.Records {
		st.records[recordID{r.Kind, r.Key}] = r
	}
	return st
}
