// Package store provides the SQL-backed persistence substrate for tally.
//
// The store implements ledger.Substrate, ledger.Atomic, ledger.Snapshotter
// and ledger.RecordStore on top of database/sql with two dialects:
//   - SQLite (github.com/mattn/go-sqlite3), the default embedded backend
//   - PostgreSQL (github.com/lib/pq), for shared deployments
//
// # Tables
//
//   - accounts: one row per account, keyed by NFC-normalized name
//   - entries:  append-only posting history (opening, credit, debit)
//   - vouchers: append-only transaction log, id assigned at commit
//   - records:  keyed JSON documents for inventory, bills and budgets
//
// # Critical Patterns
//
// Per-account read-modify-write:
//   - UpdateBalance reads the row, lets the engine compute the new balance,
//     then writes it with "WHERE version = ?" (compare-and-swap)
//   - A lost race is reported as ledger.CodeTransient and retried upstream
//
// Deterministic reads:
//   - Accounts ORDER BY name COLLATE BINARY, entries ORDER BY seq,
//     vouchers ORDER BY id, records ORDER BY kind, record_key
//
// Error classification:
//   - SQLITE_BUSY / SQLITE_LOCKED and Postgres 40001, 40P01, 55P03, 53300
//     become ledger.CodeTransient
//   - unique violations become ledger.CodeDuplicate
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - _txlock=immediate: take the write lock at BEGIN, so a read-modify-write
//     never has to upgrade a shared lock
package store
