package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/buildtrack/voice-expense-service/internal/config"
	"github.com/buildtrack/voice-expense-service/internal/extract"
	"github.com/buildtrack/voice-expense-service/internal/ledger"
	"github.com/buildtrack/voice-expense-service/internal/live"
	"github.com/buildtrack/voice-expense-service/internal/metrics"
)

// Server provides the HTTP API: ledger CRUD, summaries, bulk import,
// insights, backup, and the voice session bridge.
type Server struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	store     *ledger.Store
	extractor *extract.Client
	metrics   *metrics.Metrics

	// Server state
	startTime time.Time

	// At most one voice bridge at a time.
	voiceMu sync.Mutex
	voice   *live.Controller
}

// NewServer creates the HTTP API server
func NewServer(cfg *config.Config, logger *slog.Logger, store *ledger.Store,
	extractor *extract.Client, m *metrics.Metrics) *Server {

	s := &Server{
		logger:    logger,
		config:    cfg,
		store:     store,
		extractor: extractor,
		metrics:   m,
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.setupRoutes(r)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures HTTP API routes
func (s *Server) setupRoutes(r chi.Router) {
	r.Get("/", s.withMetrics("/", s.handleRoot))
	r.Get("/health", s.withMetrics("/health", s.handleHealth))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/expenses", s.withMetrics("/api/expenses", s.handleListExpenses))
		r.Post("/expenses", s.withMetrics("/api/expenses", s.handleCreateExpense))
		r.Delete("/expenses/{id}", s.withMetrics("/api/expenses/{id}", s.handleDeleteExpense))

		r.Get("/contract", s.withMetrics("/api/contract", s.handleGetContract))
		r.Put("/contract", s.withMetrics("/api/contract", s.handleSaveContract))

		r.Get("/summary", s.withMetrics("/api/summary", s.handleSummary))

		r.Post("/bulk-import", s.withMetrics("/api/bulk-import", s.handleBulkImport))
		r.Get("/insights", s.withMetrics("/api/insights", s.handleInsights))

		r.Get("/backup", s.withMetrics("/api/backup", s.handleBackupExport))
		r.Post("/backup", s.withMetrics("/api/backup", s.handleBackupImport))

		r.Get("/voice/status", s.withMetrics("/api/voice/status", s.handleVoiceStatus))
		r.Get("/voice/stream", s.handleVoiceStream)
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		s.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			s.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server and any running voice session
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP API server...")

	s.voiceMu.Lock()
	if s.voice != nil {
		s.voice.Stop()
		s.voice = nil
	}
	s.voiceMu.Unlock()

	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleListExpenses implements GET /api/expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.store.List()
	if err != nil {
		s.logger.Error("Failed to list expenses", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "failed to list expenses")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"expenses":  expenses,
		"count":     len(expenses),
		"timestamp": time.Now().UTC(),
	})
}

// handleCreateExpense implements POST /api/expenses for manual entries.
// Missing id, date, and type fields are filled with defaults before
// validation.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var e ledger.Expense
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid expense JSON")
		return
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Date == "" {
		e.Date = time.Now().Format(ledger.DateLayout)
	}
	if e.Type == "" {
		e.Type = ledger.PaymentPartial
	}

	if err := s.store.Append(e); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Expense created",
		slog.String("expense_id", e.ID),
		slog.Float64("amount", e.Amount),
		slog.String("payee", e.Payee),
	)
	s.writeJSON(w, http.StatusCreated, e)
}

// handleDeleteExpense implements DELETE /api/expenses/{id}
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Remove(id); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.logger.Info("Expense removed", slog.String("expense_id", id))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": id})
}

// handleGetContract implements GET /api/contract
func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	contract, err := s.store.GetContract()
	if err != nil {
		s.logger.Error("Failed to read contract", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "failed to read contract")
		return
	}
	s.writeJSON(w, http.StatusOK, contract)
}

// handleSaveContract implements PUT /api/contract
func (s *Server) handleSaveContract(w http.ResponseWriter, r *http.Request) {
	var c ledger.Contract
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid contract JSON")
		return
	}

	if err := s.store.SaveContract(c); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Contract updated",
		slog.String("project", c.ProjectName),
		slog.Float64("total_value", c.TotalValue),
	)
	s.writeJSON(w, http.StatusOK, c)
}

// handleSummary implements GET /api/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Summary()
	if err != nil {
		s.logger.Error("Failed to build summary", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}

	contract, err := s.store.GetContract()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read contract")
		return
	}

	resp := map[string]any{
		"summary":   summary,
		"contract":  contract,
		"timestamp": time.Now().UTC(),
	}
	if contract.TotalValue > 0 {
		resp["budget_used_percent"] = summary.TotalSpent / contract.TotalValue * 100
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleBulkImport implements POST /api/bulk-import. The request body
// carries free-form text; extracted entries are appended to the ledger.
func (s *Server) handleBulkImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request JSON")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Extract.GetTimeout())
	defer cancel()

	startTime := time.Now()
	s.metrics.RecordExtractRequest()

	expenses, err := s.extractor.ParseBulk(ctx, req.Text)
	if err != nil {
		s.metrics.RecordExtractFailure(time.Since(startTime).Seconds())
		s.logger.Error("Bulk extraction failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.metrics.RecordExtractSuccess(time.Since(startTime).Seconds())

	imported := make([]ledger.Expense, 0, len(expenses))
	for _, e := range expenses {
		if err := s.store.Append(e); err != nil {
			s.logger.Warn("Skipping extracted expense",
				slog.String("expense_id", e.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		imported = append(imported, e)
	}

	s.logger.Info("Bulk import completed",
		slog.Int("extracted", len(expenses)),
		slog.Int("imported", len(imported)),
	)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"imported": len(imported),
		"expenses": imported,
	})
}

// handleInsights implements GET /api/insights
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Summary()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	contract, err := s.store.GetContract()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read contract")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Extract.GetTimeout())
	defer cancel()

	startTime := time.Now()
	s.metrics.RecordExtractRequest()

	text, err := s.extractor.Insights(ctx, summary, contract)
	if err != nil {
		s.metrics.RecordExtractFailure(time.Since(startTime).Seconds())
		s.logger.Error("Insights request failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.metrics.RecordExtractSuccess(time.Since(startTime).Seconds())

	s.writeJSON(w, http.StatusOK, map[string]any{
		"insights":  text,
		"timestamp": time.Now().UTC(),
	})
}

// handleBackupExport implements GET /api/backup
func (s *Server) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.Export()
	if err != nil {
		s.logger.Error("Backup export failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "failed to export backup")
		return
	}

	filename := fmt.Sprintf("expense-backup-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

// handleBackupImport implements POST /api/backup
func (s *Server) handleBackupImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 32<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read backup body")
		return
	}

	if err := s.store.Import(data); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Backup imported", slog.Int("bytes", len(data)))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// handleVoiceStatus implements GET /api/voice/status
func (s *Server) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	s.voiceMu.Lock()
	ctrl := s.voice
	s.voiceMu.Unlock()

	if ctrl == nil {
		s.writeJSON(w, http.StatusOK, live.SessionInfo{Status: live.StatusIdle})
		return
	}
	s.writeJSON(w, http.StatusOK, ctrl.Info())
}

// handleHealth implements the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime)

	expenses, err := s.store.List()
	ledgerStatus := "running"
	if err != nil {
		ledgerStatus = "degraded"
	}

	voiceStatus := string(live.StatusIdle)
	s.voiceMu.Lock()
	if s.voice != nil {
		voiceStatus = string(s.voice.Status())
	}
	s.voiceMu.Unlock()

	extractStats := s.extractor.GetStats()

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]any{
			"name":    "voice-expense-service",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"ledger": map[string]any{
				"status":          ledgerStatus,
				"active_expenses": len(expenses),
			},
			"voice": map[string]any{
				"status": voiceStatus,
			},
			"extraction": map[string]any{
				"status":          "running",
				"total_requests":  extractStats.TotalRequests,
				"success_rate":    extractStats.SuccessRate,
				"active_requests": extractStats.ActiveRequests,
			},
		},
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleRoot implements the / endpoint with API documentation
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "Construction Voice Expense Service",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":                         "API documentation",
			"GET /health":                   "Service health check",
			"GET /metrics":                  "Prometheus metrics",
			"GET /api/expenses":             "List active expenses",
			"POST /api/expenses":            "Add an expense manually",
			"DELETE /api/expenses/{id}":     "Remove an expense",
			"GET /api/contract":             "Get the project contract",
			"PUT /api/contract":             "Update the project contract",
			"GET /api/summary":              "Spend summary by category and payee",
			"POST /api/bulk-import":         "Extract and import expenses from text",
			"GET /api/insights":             "AI spending analysis",
			"GET /api/backup":               "Download a ledger backup",
			"POST /api/backup":              "Restore a ledger backup",
			"GET /api/voice/status":         "Voice session status and transcripts",
			"GET /api/voice/stream (ws)":    "Voice session audio bridge",
		},
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, apiDoc)
}
