package intent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buildtrack/voice-expense-service/internal/ledger"
)

// AddExpenseName is the function name the conversational endpoint calls to
// record an expense. Calls with any other name are not for this dispatcher.
const AddExpenseName = "addExpense"

// Declaration is a function declaration handed to the conversational
// endpoint at session negotiation so it emits conforming calls.
type Declaration struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Parameters  ObjectSchema `json:"parameters"`
}

// ObjectSchema describes a JSON-object parameter set.
type ObjectSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]ParameterSchema `json:"properties"`
	Required   []string                   `json:"required,omitempty"`
}

// ParameterSchema describes a single parameter.
type ParameterSchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// AddExpenseDeclaration builds the addExpense contract shared with the
// remote endpoint: amount, category, payee and type are required; notes
// and date are optional.
func AddExpenseDeclaration() Declaration {
	categories := make([]string, 0, len(ledger.Categories()))
	for _, c := range ledger.Categories() {
		categories = append(categories, string(c))
	}
	types := make([]string, 0, len(ledger.PaymentTypes()))
	for _, p := range ledger.PaymentTypes() {
		types = append(types, string(p))
	}

	return Declaration{
		Name:        AddExpenseName,
		Description: "Add a new construction expense to the tracker.",
		Parameters: ObjectSchema{
			Type: "OBJECT",
			Properties: map[string]ParameterSchema{
				"amount": {
					Type:        "NUMBER",
					Description: "The numeric amount of the expense in Rupees.",
				},
				"category": {
					Type:        "STRING",
					Description: "The category of the expense.",
					Enum:        categories,
				},
				"payee": {
					Type:        "STRING",
					Description: "Who was paid or the vendor name.",
				},
				"type": {
					Type:        "STRING",
					Description: "The status of the payment.",
					Enum:        types,
				},
				"notes": {
					Type:        "STRING",
					Description: "Any additional details about the work or materials.",
				},
				"date": {
					Type:        "STRING",
					Description: "The date of the expense in YYYY-MM-DD format. Defaults to today if not mentioned.",
				},
			},
			Required: []string{"amount", "category", "payee", "type"},
		},
	}
}

// BuildExpense validates a tool-call argument map and synthesizes a fresh
// expense record. Defaults are substituted only for type (partial payment)
// and date (today); a call missing amount, category, or payee is rejected
// and must not produce a ledger mutation.
func BuildExpense(args map[string]any) (ledger.Expense, error) {
	amount, ok := numberArg(args, "amount")
	if !ok {
		return ledger.Expense{}, fmt.Errorf("missing required field amount")
	}
	if amount < 0 {
		return ledger.Expense{}, fmt.Errorf("amount must be non-negative, got %f", amount)
	}

	category, ok := stringArg(args, "category")
	if !ok {
		return ledger.Expense{}, fmt.Errorf("missing required field category")
	}
	if !ledger.ValidCategory(category) {
		return ledger.Expense{}, fmt.Errorf("unknown category %q", category)
	}

	payee, ok := stringArg(args, "payee")
	if !ok {
		return ledger.Expense{}, fmt.Errorf("missing required field payee")
	}

	ptype, ok := stringArg(args, "type")
	if !ok {
		ptype = string(ledger.PaymentPartial)
	} else if !ledger.ValidPaymentType(ptype) {
		return ledger.Expense{}, fmt.Errorf("unknown payment type %q", ptype)
	}

	date, ok := stringArg(args, "date")
	if !ok {
		date = time.Now().Format(ledger.DateLayout)
	} else if _, err := time.Parse(ledger.DateLayout, date); err != nil {
		return ledger.Expense{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	notes, _ := stringArg(args, "notes")

	return ledger.Expense{
		ID:       uuid.NewString(),
		Date:     date,
		Amount:   amount,
		Category: ledger.Category(category),
		Payee:    payee,
		Type:     ledger.PaymentType(ptype),
		Notes:    notes,
	}, nil
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func numberArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
