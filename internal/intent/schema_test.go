package intent

import (
	"testing"
	"time"

	"github.com/buildtrack/voice-expense-service/internal/ledger"
)

func TestAddExpenseDeclaration(t *testing.T) {
	decl := AddExpenseDeclaration()

	if decl.Name != AddExpenseName {
		t.Errorf("Expected declaration name %q, got %q", AddExpenseName, decl.Name)
	}

	required := map[string]bool{}
	for _, r := range decl.Parameters.Required {
		required[r] = true
	}
	for _, field := range []string{"amount", "category", "payee", "type"} {
		if !required[field] {
			t.Errorf("Expected %s to be a required parameter", field)
		}
	}
	if required["date"] || required["notes"] {
		t.Error("date and notes must stay optional")
	}

	cat, ok := decl.Parameters.Properties["category"]
	if !ok {
		t.Fatal("Declaration missing category parameter")
	}
	if len(cat.Enum) != len(ledger.Categories()) {
		t.Errorf("Expected %d category enum values, got %d", len(ledger.Categories()), len(cat.Enum))
	}
}

func TestBuildExpenseAppliesDefaults(t *testing.T) {
	// "Paid Sharma 1500 advance for electrical work" with no date mentioned.
	args := map[string]any{
		"amount":   float64(1500),
		"category": "Electrical",
		"payee":    "Sharma",
		"type":     "Advance",
	}

	e, err := BuildExpense(args)
	if err != nil {
		t.Fatalf("BuildExpense failed: %v", err)
	}

	if e.Amount != 1500 || e.Category != ledger.CategoryElectrical ||
		e.Payee != "Sharma" || e.Type != ledger.PaymentAdvance {
		t.Errorf("Unexpected expense fields: %+v", e)
	}
	if e.Date != time.Now().Format(ledger.DateLayout) {
		t.Errorf("Expected today's date, got %q", e.Date)
	}
	if e.ID == "" {
		t.Error("Expected a generated expense id")
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Built expense failed validation: %v", err)
	}
}

func TestBuildExpenseDefaultsPaymentType(t *testing.T) {
	args := map[string]any{
		"amount":   float64(200),
		"category": "Labor (Hazri)",
		"payee":    "Ramesh",
	}

	e, err := BuildExpense(args)
	if err != nil {
		t.Fatalf("BuildExpense failed: %v", err)
	}
	if e.Type != ledger.PaymentPartial {
		t.Errorf("Expected default payment type %q, got %q", ledger.PaymentPartial, e.Type)
	}
}

func TestBuildExpenseRejectsMissingRequired(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing amount", map[string]any{"category": "Electrical", "payee": "Sharma"}},
		{"missing category", map[string]any{"amount": float64(100), "payee": "Sharma"}},
		{"missing payee", map[string]any{"amount": float64(100), "category": "Electrical"}},
		{"amount wrong type", map[string]any{"amount": "1500", "category": "Electrical", "payee": "Sharma"}},
		{"negative amount", map[string]any{"amount": float64(-10), "category": "Electrical", "payee": "Sharma"}},
		{"unknown category", map[string]any{"amount": float64(100), "category": "Gardening", "payee": "Sharma"}},
		{"unknown type", map[string]any{"amount": float64(100), "category": "Electrical", "payee": "Sharma", "type": "Loan"}},
		{"bad date", map[string]any{"amount": float64(100), "category": "Electrical", "payee": "Sharma", "date": "15/01/2026"}},
	}

	for _, tc := range cases {
		if _, err := BuildExpense(tc.args); err == nil {
			t.Errorf("%s: expected BuildExpense to fail", tc.name)
		}
	}
}

func TestBuildExpenseAcceptsIntegerAmount(t *testing.T) {
	args := map[string]any{
		"amount":   1500,
		"category": "Plumbing",
		"payee":    "Verma",
		"date":     "2026-03-10",
		"notes":    "bathroom fittings",
	}

	e, err := BuildExpense(args)
	if err != nil {
		t.Fatalf("BuildExpense failed: %v", err)
	}
	if e.Amount != 1500 || e.Date != "2026-03-10" || e.Notes != "bathroom fittings" {
		t.Errorf("Unexpected expense fields: %+v", e)
	}
}
