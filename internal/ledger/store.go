package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed expense ledger. All methods are synchronous
// and safe for use from asynchronous callback contexts.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the ledger database at path and runs the schema
// migration. ":memory:" gives an in-memory ledger for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS expenses (
			id       TEXT PRIMARY KEY,
			date     TEXT NOT NULL,
			amount   REAL NOT NULL,
			category TEXT NOT NULL,
			payee    TEXT NOT NULL,
			type     TEXT NOT NULL,
			notes    TEXT NOT NULL DEFAULT '',
			deleted  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_active ON expenses(deleted, date)`,

		// Singleton contract row.
		`CREATE TABLE IF NOT EXISTS contract (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			total_value REAL NOT NULL DEFAULT 0,
			project     TEXT NOT NULL DEFAULT 'Main Project',
			start_date  TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Append adds a validated expense to the ledger. The record is immutable
// once stored.
func (s *Store) Append(e Expense) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid expense: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO expenses (id, date, amount, category, payee, type, notes, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Date, e.Amount, string(e.Category), e.Payee, string(e.Type), e.Notes, boolToInt(e.Deleted))
	if err != nil {
		return fmt.Errorf("appending expense %s: %w", e.ID, err)
	}
	return nil
}

// Remove marks an expense deleted, removing it from the active list.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE expenses SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("removing expense %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("expense %s not found", id)
	}
	return nil
}

// List returns all active expenses ordered by date, newest first.
func (s *Store) List() ([]Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, date, amount, category, payee, type, notes
		FROM expenses WHERE deleted = 0
		ORDER BY date DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()

	var expenses []Expense
	for rows.Next() {
		var e Expense
		var category, ptype string
		if err := rows.Scan(&e.ID, &e.Date, &e.Amount, &category, &e.Payee, &ptype, &e.Notes); err != nil {
			return nil, fmt.Errorf("scanning expense row: %w", err)
		}
		e.Category = Category(category)
		e.Type = PaymentType(ptype)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// Summary aggregates spend across the active ledger.
func (s *Store) Summary() (Summary, error) {
	expenses, err := s.List()
	if err != nil {
		return Summary{}, err
	}
	return Summarize(expenses), nil
}

// GetContract returns the project contract, or a default contract when
// none has been saved yet.
func (s *Store) GetContract() (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Contract
	err := s.db.QueryRow(`SELECT total_value, project, start_date FROM contract WHERE id = 1`).
		Scan(&c.TotalValue, &c.ProjectName, &c.StartDate)
	if err == sql.ErrNoRows {
		return Contract{
			ProjectName: "Main Project",
			StartDate:   time.Now().Format(DateLayout),
		}, nil
	}
	if err != nil {
		return Contract{}, fmt.Errorf("reading contract: %w", err)
	}
	return c, nil
}

// SaveContract replaces the singleton contract.
func (s *Store) SaveContract(c Contract) error {
	if c.TotalValue < 0 {
		return fmt.Errorf("contract total value must be non-negative, got %f", c.TotalValue)
	}
	if c.StartDate != "" {
		if _, err := time.Parse(DateLayout, c.StartDate); err != nil {
			return fmt.Errorf("invalid contract start date %q: %w", c.StartDate, err)
		}
	} else {
		c.StartDate = time.Now().Format(DateLayout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO contract (id, total_value, project, start_date)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_value = excluded.total_value,
			project     = excluded.project,
			start_date  = excluded.start_date
	`, c.TotalValue, c.ProjectName, c.StartDate)
	if err != nil {
		return fmt.Errorf("saving contract: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
