package ledger

import (
	"fmt"
	"time"
)

// Category is the fixed set of construction work categories.
type Category string

// Expense categories. The string values are the display names the
// conversational endpoint and bulk extractor are instructed to use.
const (
	CategoryCeiling    Category = "POP & Ceiling"
	CategoryPainting   Category = "Painting & Color"
	CategoryElectrical Category = "Electrical"
	CategoryPlumbing   Category = "Plumbing"
	CategoryFlooring   Category = "Flooring"
	CategoryLabor      Category = "Labor (Hazri)"
	CategoryMaterial   Category = "Raw Material (Saria/Cement)"
	CategoryWoodwork   Category = "Woodwork/Carpentry"
	CategoryOther      Category = "Other Site Work"
)

// PaymentType is the fixed set of payment statuses.
type PaymentType string

// Payment types.
const (
	PaymentAdvance  PaymentType = "Advance"
	PaymentFinal    PaymentType = "Final Payment"
	PaymentPartial  PaymentType = "Partial Payment"
	PaymentMaterial PaymentType = "Material Purchase"
)

// DateLayout is the calendar-day form used throughout the ledger.
const DateLayout = "2006-01-02"

// Categories returns all valid categories in declaration order.
func Categories() []Category {
	return []Category{
		CategoryCeiling, CategoryPainting, CategoryElectrical,
		CategoryPlumbing, CategoryFlooring, CategoryLabor,
		CategoryMaterial, CategoryWoodwork, CategoryOther,
	}
}

// PaymentTypes returns all valid payment types in declaration order.
func PaymentTypes() []PaymentType {
	return []PaymentType{
		PaymentAdvance, PaymentFinal, PaymentPartial, PaymentMaterial,
	}
}

// ValidCategory reports whether s is a member of the category enumeration.
func ValidCategory(s string) bool {
	for _, c := range Categories() {
		if string(c) == s {
			return true
		}
	}
	return false
}

// ValidPaymentType reports whether s is a member of the payment-type
// enumeration.
func ValidPaymentType(s string) bool {
	for _, p := range PaymentTypes() {
		if string(p) == s {
			return true
		}
	}
	return false
}

// Expense is one ledger entry. Records are immutable once created;
// deletion only removes them from the active list.
type Expense struct {
	ID       string      `json:"id"`
	Date     string      `json:"date"` // YYYY-MM-DD
	Amount   float64     `json:"amount"`
	Category Category    `json:"category"`
	Payee    string      `json:"payee"`
	Type     PaymentType `json:"type"`
	Notes    string      `json:"notes"`
	Deleted  bool        `json:"isDeleted,omitempty"`
}

// Validate checks the expense invariants: non-negative amount, enum
// membership, a parseable date, and a non-empty identity.
func (e *Expense) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("expense id cannot be empty")
	}
	if e.Amount < 0 {
		return fmt.Errorf("amount must be non-negative, got %f", e.Amount)
	}
	if !ValidCategory(string(e.Category)) {
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if !ValidPaymentType(string(e.Type)) {
		return fmt.Errorf("unknown payment type %q", e.Type)
	}
	if e.Payee == "" {
		return fmt.Errorf("payee cannot be empty")
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", e.Date, err)
	}
	return nil
}

// Contract is the singleton project contract: total budget, project name,
// and start date.
type Contract struct {
	TotalValue  float64 `json:"totalValue"`
	ProjectName string  `json:"projectName"`
	StartDate   string  `json:"startDate"`
}

// Summary aggregates spend across the active ledger.
type Summary struct {
	TotalSpent float64            `json:"totalSpent"`
	ByCategory map[string]float64 `json:"byCategory"`
	ByPayee    map[string]float64 `json:"byPayee"`
}

// Summarize computes spend totals for a list of active expenses.
func Summarize(expenses []Expense) Summary {
	s := Summary{
		ByCategory: make(map[string]float64),
		ByPayee:    make(map[string]float64),
	}
	for _, e := range expenses {
		s.TotalSpent += e.Amount
		s.ByCategory[string(e.Category)] += e.Amount
		s.ByPayee[e.Payee] += e.Amount
	}
	return s
}
