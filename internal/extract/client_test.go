package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/buildtrack/voice-expense-service/internal/ledger"
	"github.com/buildtrack/voice-expense-service/internal/metrics"
)

// Prometheus metrics register globally, so the test binary shares one set.
var testMetrics = metrics.NewMetrics()

// candidateResponse wraps text the way the generateContent API returns it.
func candidateResponse(text string) []byte {
	resp := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}},
	}
	data, _ := json.Marshal(resp)
	return data
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Endpoint:   server.URL,
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		Metrics:    testMetrics,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k"}); err == nil {
		t.Error("Expected error for missing endpoint")
	}
	if _, err := NewClient(Config{Endpoint: "http://localhost"}); err == nil {
		t.Error("Expected error for missing API key")
	}
}

func TestParseBulkAppliesDefaults(t *testing.T) {
	entries := `[
		{"amount": 1500, "category": "Electrical", "payee": "Sharma", "type": "Advance", "date": "2026-03-01", "notes": "wiring"},
		{"amount": 300, "payee": "Ramesh"}
	]`

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("Unexpected request path %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("API key not passed as query parameter")
		}
		w.Write(candidateResponse(entries))
	})

	expenses, err := client.ParseBulk(context.Background(), "paid sharma 1500 advance wiring, ramesh 300")
	if err != nil {
		t.Fatalf("ParseBulk failed: %v", err)
	}
	if len(expenses) != 2 {
		t.Fatalf("Expected 2 expenses, got %d", len(expenses))
	}

	first := expenses[0]
	if first.Amount != 1500 || first.Category != ledger.CategoryElectrical ||
		first.Payee != "Sharma" || first.Type != ledger.PaymentAdvance || first.Date != "2026-03-01" {
		t.Errorf("Unexpected first expense: %+v", first)
	}

	// Second entry gets category, type, and date defaults.
	second := expenses[1]
	if second.Category != ledger.CategoryOther {
		t.Errorf("Expected default category, got %q", second.Category)
	}
	if second.Type != ledger.PaymentPartial {
		t.Errorf("Expected default payment type, got %q", second.Type)
	}
	if second.Date != time.Now().Format(ledger.DateLayout) {
		t.Errorf("Expected today's date, got %q", second.Date)
	}

	for _, e := range expenses {
		if e.ID == "" {
			t.Error("Expected generated expense ids")
		}
		if err := e.Validate(); err != nil {
			t.Errorf("Extracted expense failed validation: %v", err)
		}
	}
}

func TestParseBulkSkipsUnusableEntries(t *testing.T) {
	entries := `[
		{"amount": 0, "payee": "NoAmount"},
		{"amount": 500, "payee": "  "},
		{"amount": 750, "payee": "Tile Depot", "category": "Flooring"}
	]`

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(candidateResponse(entries))
	})

	expenses, err := client.ParseBulk(context.Background(), "some site notes")
	if err != nil {
		t.Fatalf("ParseBulk failed: %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("Expected 1 usable expense, got %d", len(expenses))
	}
	if expenses[0].Payee != "Tile Depot" {
		t.Errorf("Unexpected surviving expense: %+v", expenses[0])
	}
}

func TestParseBulkRejectsEmptyText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request expected for empty text")
	})

	if _, err := client.ParseBulk(context.Background(), "   "); err == nil {
		t.Error("Expected error for empty text")
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	retriesBefore := testutil.ToFloat64(testMetrics.ExtractRetries)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write(candidateResponse(`[{"amount": 100, "payee": "Verma"}]`))
	})

	expenses, err := client.ParseBulk(context.Background(), "verma 100")
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("Expected 1 expense, got %d", len(expenses))
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls.Load())
	}

	stats := client.GetStats()
	if stats.TotalRetries != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	if got := testutil.ToFloat64(testMetrics.ExtractRetries) - retriesBefore; got != 1 {
		t.Errorf("Expected retry counter to advance by 1, got %v", got)
	}
}

func TestInsights(t *testing.T) {
	var prompt string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			prompt = req.Contents[0].Parts[0].Text
		}
		w.Write(candidateResponse("Most spending is on electrical work."))
	})

	summary := ledger.Summary{
		TotalSpent: 3500,
		ByCategory: map[string]float64{"Electrical": 3000, "Labor (Hazri)": 500},
		ByPayee:    map[string]float64{"Sharma": 3000, "Ramesh": 500},
	}
	contract := ledger.Contract{TotalValue: 100000, ProjectName: "Plot 7", StartDate: "2026-01-01"}

	text, err := client.Insights(context.Background(), summary, contract)
	if err != nil {
		t.Fatalf("Insights failed: %v", err)
	}
	if text != "Most spending is on electrical work." {
		t.Errorf("Unexpected insights text: %q", text)
	}
	if !strings.Contains(prompt, "Plot 7") || !strings.Contains(prompt, "Electrical") {
		t.Errorf("Prompt missing project context: %q", prompt)
	}
}
