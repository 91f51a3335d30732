package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buildtrack/voice-expense-service/internal/ledger"
	"github.com/buildtrack/voice-expense-service/internal/metrics"
)

// Client provides HTTP client functionality for text extraction requests
// against a generateContent endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore
	metrics    *metrics.Metrics

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains extraction client configuration. Metrics is optional;
// when set, retries are counted there as well as in the client stats.
type Config struct {
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	Metrics       *metrics.Metrics
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// generateContent wire types.
type generateRequest struct {
	Contents         []reqContent      `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type reqContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []reqPart `json:"parts"`
}

type reqPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type schema struct {
	Type       string             `json:"type"`
	Items      *schema            `json:"items,omitempty"`
	Properties map[string]*schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []reqPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// parsedExpense is one entry as returned by the extraction model, before
// defaults and validation are applied.
type parsedExpense struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Payee    string  `json:"payee"`
	Type     string  `json:"type"`
	Date     string  `json:"date"`
	Notes    string  `json:"notes"`
}

// NewClient creates a new extraction HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		metrics:    config.Metrics,
	}, nil
}

// ParseBulk extracts expense entries from free-form text, such as a pasted
// WhatsApp message or a site diary page. Entries missing an amount or a
// payee are skipped; missing category, payment type, or date fall back to
// defaults.
func (c *Client) ParseBulk(ctx context.Context, text string) ([]ledger.Expense, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	prompt := fmt.Sprintf(
		"Extract construction expense entries from the following text. "+
			"Each entry needs an amount and a payee. Use the category and payment "+
			"type values exactly as listed in the schema. Dates are YYYY-MM-DD.\n\n%s",
		text,
	)

	request := &generateRequest{
		Contents: []reqContent{{
			Role:  "user",
			Parts: []reqPart{{Text: prompt}},
		}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   bulkSchema(),
		},
	}

	raw, err := c.generate(ctx, request)
	if err != nil {
		return nil, err
	}

	var parsed []parsedExpense
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}

	today := time.Now().Format(ledger.DateLayout)
	expenses := make([]ledger.Expense, 0, len(parsed))
	for _, p := range parsed {
		if p.Amount <= 0 || strings.TrimSpace(p.Payee) == "" {
			continue
		}
		if !ledger.ValidCategory(p.Category) {
			p.Category = string(ledger.CategoryOther)
		}
		if !ledger.ValidPaymentType(p.Type) {
			p.Type = string(ledger.PaymentPartial)
		}
		if _, err := time.Parse(ledger.DateLayout, p.Date); err != nil {
			p.Date = today
		}
		expenses = append(expenses, ledger.Expense{
			ID:       uuid.NewString(),
			Date:     p.Date,
			Amount:   p.Amount,
			Category: ledger.Category(p.Category),
			Payee:    strings.TrimSpace(p.Payee),
			Type:     ledger.PaymentType(p.Type),
			Notes:    p.Notes,
		})
	}

	return expenses, nil
}

// Insights asks the model for a short spending analysis of the project.
func (c *Client) Insights(ctx context.Context, summary ledger.Summary, contract ledger.Contract) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are reviewing spending for the construction project %q.\n", contract.ProjectName)
	if contract.TotalValue > 0 {
		fmt.Fprintf(&sb, "Contract value: %.2f. Spent so far: %.2f (%.1f%%).\n",
			contract.TotalValue, summary.TotalSpent, summary.TotalSpent/contract.TotalValue*100)
	} else {
		fmt.Fprintf(&sb, "Spent so far: %.2f.\n", summary.TotalSpent)
	}
	sb.WriteString("Spend by category:\n")
	for category, amount := range summary.ByCategory {
		fmt.Fprintf(&sb, "- %s: %.2f\n", category, amount)
	}
	sb.WriteString("Spend by payee:\n")
	for payee, amount := range summary.ByPayee {
		fmt.Fprintf(&sb, "- %s: %.2f\n", payee, amount)
	}
	sb.WriteString("\nGive a short, practical analysis: where the money is going, " +
		"anything unusual, and what to watch next. Plain text, a few sentences.")

	request := &generateRequest{
		Contents: []reqContent{{
			Role:  "user",
			Parts: []reqPart{{Text: sb.String()}},
		}},
	}

	raw, err := c.generate(ctx, request)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// generate performs a generateContent request with retries and returns the
// text of the first candidate.
func (c *Client) generate(ctx context.Context, request *generateRequest) (string, error) {
	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, request)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return text, nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return "", fmt.Errorf("extraction failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single HTTP request to the generateContent API
func (c *Client) doRequest(ctx context.Context, request *generateRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimSuffix(c.config.Endpoint, "/"), c.config.Model, c.config.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("parsing response JSON: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("response contains no candidates")
	}

	return genResp.Candidates[0].Content.Parts[0].Text, nil
}

// bulkSchema is the response schema the extraction model must follow.
func bulkSchema() *schema {
	categories := make([]string, 0, len(ledger.Categories()))
	for _, c := range ledger.Categories() {
		categories = append(categories, string(c))
	}
	types := make([]string, 0, len(ledger.PaymentTypes()))
	for _, p := range ledger.PaymentTypes() {
		types = append(types, string(p))
	}

	return &schema{
		Type: "ARRAY",
		Items: &schema{
			Type: "OBJECT",
			Properties: map[string]*schema{
				"amount":   {Type: "NUMBER"},
				"category": {Type: "STRING", Enum: categories},
				"payee":    {Type: "STRING"},
				"type":     {Type: "STRING", Enum: types},
				"date":     {Type: "STRING"},
				"notes":    {Type: "STRING"},
			},
			Required: []string{"amount", "payee"},
		},
	}
}

// isRetryableError determines if an error is retryable
func (c *Client) isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	errStr := err.Error()

	// 5xx server errors and rate limiting are retryable
	if strings.Contains(errStr, "HTTP error 5") || strings.Contains(errStr, "HTTP error 429") {
		return true
	}

	// Network/connection errors are typically retryable
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}

	return false
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	c.totalRetries++
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordExtractRetry()
	}
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	activeRequests := len(c.semaphore)

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  activeRequests,
	}
}

// Close gracefully shuts down the client, waiting for active requests.
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	return nil
}
