// Package intent defines the addExpense function contract shared with the
// conversational endpoint and validates incoming tool-call arguments into
// ledger records.
package intent
