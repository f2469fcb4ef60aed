// Package filestore is a ledger substrate kept in one JSON document.
//
// The document has the layout of ledger.Snapshot: accounts, entries,
// vouchers and records. Every operation holds an exclusive lock on
// path+".lock" while it reads the document, and a mutation writes the whole
// document to a temporary file in the same directory and renames it over the
// original before releasing the lock, so a crash never leaves a torn file.
//
// Any number of Stores, in one process or several, may share a file. An
// operation that cannot get the lock within the lock wait fails with a
// ledger.CodeTransient error wrapping ErrLocked.
package filestore
