package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Backup is the portable JSON snapshot of the whole ledger:
// {expenses, contract, timestamp}.
type Backup struct {
	Expenses  []Expense `json:"expenses"`
	Contract  Contract  `json:"contract"`
	Timestamp string    `json:"timestamp"`
}

// Export serializes the active ledger and contract into a backup document.
func (s *Store) Export() ([]byte, error) {
	expenses, err := s.List()
	if err != nil {
		return nil, err
	}
	contract, err := s.GetContract()
	if err != nil {
		return nil, err
	}

	backup := Backup{
		Expenses:  expenses,
		Contract:  contract,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding backup: %w", err)
	}
	return data, nil
}

// Import restores a backup document, replacing the contract and appending
// any expense whose id is not already present. Records failing validation
// are rejected and abort the import before any mutation.
func (s *Store) Import(data []byte) error {
	var backup Backup
	if err := json.Unmarshal(data, &backup); err != nil {
		return fmt.Errorf("invalid backup file: %w", err)
	}

	for i := range backup.Expenses {
		if err := backup.Expenses[i].Validate(); err != nil {
			return fmt.Errorf("backup expense %d: %w", i, err)
		}
	}

	if err := s.SaveContract(backup.Contract); err != nil {
		return err
	}

	existing, err := s.List()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.ID] = true
	}

	for _, e := range backup.Expenses {
		if seen[e.ID] {
			continue
		}
		if err := s.Append(e); err != nil {
			return err
		}
	}
	return nil
}
