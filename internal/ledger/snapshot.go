package ledger

import "time"

// SnapshotVersion is the current snapshot layout version.
const SnapshotVersion = 1

// SnapshotMeta describes where and when a snapshot was taken.
type SnapshotMeta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the complete persisted state of a substrate.
// Collections are in their natural order: accounts by name, entries by seq,
// vouchers by id, records by (kind, key).
type Snapshot struct {
	Meta     SnapshotMeta `json:"_meta"`
	Accounts []Account    `json:"accounts"`
	Entries  []Entry      `json:"entries"`
	Vouchers []Voucher    `json:"vouchers"`
	Records  []Record     `json:"records"`
}

// Empty reports whether the snapshot holds no data.
func (s Snapshot) Empty() bool {
	return len(s.Accounts) == 0 && len(s.Entries) == 0 && len(s.Vouchers) == 0 && len(s.Records) == 0
}
