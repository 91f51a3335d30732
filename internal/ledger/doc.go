// Package ledger owns expense records and the project contract.
// It provides SQLite-backed append/remove/list persistence, enum validation
// for categories and payment types, spend aggregation, and the JSON backup
// data contract.
package ledger
