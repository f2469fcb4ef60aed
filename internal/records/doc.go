// Package records keeps the auxiliary bookkeeping collections: inventory
// items, bills and budgets.
//
// Each collection is a keyed map of JSON documents stored through a Backend.
// Records carry no invariants across each other or across ledger accounts;
// a budget names an account but does not require it to exist.
package records
