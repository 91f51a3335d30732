package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testExpense(amount float64, category Category, payee string) Expense {
	return Expense{
		ID:       uuid.NewString(),
		Date:     time.Now().Format(DateLayout),
		Amount:   amount,
		Category: category,
		Payee:    payee,
		Type:     PaymentPartial,
	}
}

func TestAppendAndList(t *testing.T) {
	store := openTestStore(t)

	e := testExpense(1500, CategoryElectrical, "Sharma")
	e.Notes = "wiring first floor"
	if err := store.Append(e); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	expenses, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("Expected 1 expense, got %d", len(expenses))
	}

	got := expenses[0]
	if got.ID != e.ID || got.Amount != 1500 || got.Category != CategoryElectrical ||
		got.Payee != "Sharma" || got.Type != PaymentPartial || got.Notes != "wiring first floor" {
		t.Errorf("Listed expense does not match appended record: %+v", got)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	store := openTestStore(t)

	cases := []struct {
		name   string
		mutate func(*Expense)
	}{
		{"negative amount", func(e *Expense) { e.Amount = -1 }},
		{"unknown category", func(e *Expense) { e.Category = "Landscaping" }},
		{"unknown payment type", func(e *Expense) { e.Type = "Gift" }},
		{"empty payee", func(e *Expense) { e.Payee = "" }},
		{"bad date", func(e *Expense) { e.Date = "31-12-2025" }},
		{"empty id", func(e *Expense) { e.ID = "" }},
	}

	for _, tc := range cases {
		e := testExpense(100, CategoryLabor, "Ramesh")
		tc.mutate(&e)
		if err := store.Append(e); err == nil {
			t.Errorf("%s: expected append to fail", tc.name)
		}
	}

	expenses, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(expenses) != 0 {
		t.Errorf("Expected empty ledger after rejected appends, got %d records", len(expenses))
	}
}

func TestRemoveHidesFromActiveList(t *testing.T) {
	store := openTestStore(t)

	e := testExpense(500, CategoryPlumbing, "Verma")
	if err := store.Append(e); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := store.Remove(e.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	expenses, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(expenses) != 0 {
		t.Errorf("Expected removed expense to leave active list, got %d records", len(expenses))
	}

	if err := store.Remove(e.ID); err == nil {
		t.Error("Expected error removing an already-removed expense")
	}
	if err := store.Remove("no-such-id"); err == nil {
		t.Error("Expected error removing an unknown expense")
	}
}

func TestContractRoundTrip(t *testing.T) {
	store := openTestStore(t)

	// Default contract before anything is saved.
	c, err := store.GetContract()
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if c.ProjectName != "Main Project" {
		t.Errorf("Expected default project name, got %q", c.ProjectName)
	}

	saved := Contract{TotalValue: 2500000, ProjectName: "Sector 12 Villa", StartDate: "2026-01-15"}
	if err := store.SaveContract(saved); err != nil {
		t.Fatalf("SaveContract failed: %v", err)
	}

	got, err := store.GetContract()
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if got != saved {
		t.Errorf("Contract mismatch: expected %+v, got %+v", saved, got)
	}

	if err := store.SaveContract(Contract{TotalValue: -1}); err == nil {
		t.Error("Expected error for negative contract value")
	}
}

func TestSummary(t *testing.T) {
	store := openTestStore(t)

	records := []Expense{
		testExpense(1000, CategoryElectrical, "Sharma"),
		testExpense(2000, CategoryElectrical, "Sharma"),
		testExpense(500, CategoryLabor, "Ramesh"),
	}
	for _, e := range records {
		if err := store.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	summary, err := store.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if summary.TotalSpent != 3500 {
		t.Errorf("Expected total spent 3500, got %f", summary.TotalSpent)
	}
	if summary.ByCategory[string(CategoryElectrical)] != 3000 {
		t.Errorf("Expected 3000 electrical spend, got %f", summary.ByCategory[string(CategoryElectrical)])
	}
	if summary.ByPayee["Ramesh"] != 500 {
		t.Errorf("Expected 500 for Ramesh, got %f", summary.ByPayee["Ramesh"])
	}
}

func TestBackupExportImport(t *testing.T) {
	src := openTestStore(t)

	if err := src.SaveContract(Contract{TotalValue: 100000, ProjectName: "Plot 7", StartDate: "2026-02-01"}); err != nil {
		t.Fatalf("SaveContract failed: %v", err)
	}
	e := testExpense(750, CategoryFlooring, "Tile Depot")
	if err := src.Append(e); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := src.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := openTestStore(t)
	if err := dst.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	expenses, err := dst.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(expenses) != 1 || expenses[0].ID != e.ID {
		t.Errorf("Imported ledger does not match exported one: %+v", expenses)
	}

	contract, err := dst.GetContract()
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if contract.ProjectName != "Plot 7" {
		t.Errorf("Expected imported contract, got %+v", contract)
	}

	// Importing the same backup twice must not duplicate records.
	if err := dst.Import(data); err != nil {
		t.Fatalf("Second import failed: %v", err)
	}
	expenses, _ = dst.List()
	if len(expenses) != 1 {
		t.Errorf("Expected idempotent import, got %d records", len(expenses))
	}
}

func TestImportRejectsMalformedBackup(t *testing.T) {
	store := openTestStore(t)

	if err := store.Import([]byte("{not json")); err == nil {
		t.Error("Expected error for malformed JSON")
	}

	bad := []byte(`{"expenses":[{"id":"x","date":"2026-01-01","amount":-5,"category":"Electrical","payee":"A","type":"Advance"}],"contract":{"totalValue":0,"projectName":"P","startDate":"2026-01-01"}}`)
	if err := store.Import(bad); err == nil {
		t.Error("Expected error for backup with invalid expense")
	}
	expenses, _ := store.List()
	if len(expenses) != 0 {
		t.Errorf("Rejected import must not mutate ledger, got %d records", len(expenses))
	}
}
