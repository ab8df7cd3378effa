package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/mshadianto/mnee-sentinel/internal/alert"
	"github.com/mshadianto/mnee-sentinel/internal/compliance"
	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
	"github.com/mshadianto/mnee-sentinel/internal/extract"
	"github.com/mshadianto/mnee-sentinel/internal/payment"
	"github.com/mshadianto/mnee-sentinel/internal/reconciliation"
	"github.com/mshadianto/mnee-sentinel/internal/store"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MB
	defaultAuditLimit   = 50
	maxAuditLimit       = 500
)

// Pinger reports database liveness for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server exposes the governance gate over HTTP: proposal submission, the
// audit trail, whitelist and budget management, and reconciliation.
type Server struct {
	extractor  extract.Extractor
	engine     *compliance.Engine
	recorder   *compliance.Recorder
	rail       payment.Rail
	vendorRepo store.VendorRepository
	budgetRepo store.BudgetRepository
	auditRepo  store.AuditLogRepository
	reconciler *reconciliation.Service
	alerter    alert.Alerter
	pinger     Pinger
	logger     *slog.Logger
}

// ServerOption configures optional dependencies for the API server.
type ServerOption func(*Server)

// WithReconciler enables the POST /v1/reconcile endpoint.
func WithReconciler(r *reconciliation.Service) ServerOption {
	return func(s *Server) { s.reconciler = r }
}

// WithAlerter sets the alerter used for velocity rejection alerts.
func WithAlerter(a alert.Alerter) ServerOption {
	return func(s *Server) { s.alerter = a }
}

// WithPinger sets the database liveness probe for /healthz.
func WithPinger(p Pinger) ServerOption {
	return func(s *Server) { s.pinger = p }
}

func NewServer(
	extractor extract.Extractor,
	engine *compliance.Engine,
	recorder *compliance.Recorder,
	rail payment.Rail,
	vendorRepo store.VendorRepository,
	budgetRepo store.BudgetRepository,
	auditRepo store.AuditLogRepository,
	logger *slog.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		extractor:  extractor,
		engine:     engine,
		recorder:   recorder,
		rail:       rail,
		vendorRepo: vendorRepo,
		budgetRepo: budgetRepo,
		auditRepo:  auditRepo,
		alerter:    alert.Noop{},
		logger:     logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the governance API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/proposals", s.handleSubmitProposal)
	mux.HandleFunc("GET /v1/audits", s.handleListAudits)
	mux.HandleFunc("GET /v1/vendors", s.handleListVendors)
	mux.HandleFunc("POST /v1/vendors", s.handleUpsertVendor)
	mux.HandleFunc("GET /v1/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /v1/reconcile", s.handleReconcile)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSONBody reads and decodes a JSON request body into v.
// Returns false (and writes an error response) if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

// --- Proposal endpoint ---

type proposalRequest struct {
	Text string `json:"text"`
}

type proposalResponse struct {
	AuditID         string          `json:"audit_id"`
	Decision        string          `json:"decision"`
	Reasoning       string          `json:"reasoning"`
	Confidence      decimal.Decimal `json:"confidence"`
	Details         map[string]any  `json:"details,omitempty"`
	VendorName      string          `json:"vendor_name"`
	VendorAddress   string          `json:"vendor_address"`
	Amount          decimal.Decimal `json:"amount"`
	Category        string          `json:"category"`
	TransactionHash *string         `json:"transaction_hash,omitempty"`
	ExecutionMode   string          `json:"execution_mode,omitempty"`
}

func (s *Server) handleSubmitProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	p, err := s.extractor.Extract(ctx, req.Text)
	if err != nil {
		s.logger.Warn("proposal extraction failed", "error", err)
		http.Error(w, `{"error":"proposal text could not be parsed"}`, http.StatusUnprocessableEntity)
		return
	}

	dec := s.engine.Evaluate(ctx, p)

	var exec *payment.TxResult
	if dec.Approved() {
		result, execErr := s.rail.Execute(ctx, p.VendorAddress, p.Amount)
		if execErr != nil {
			s.logger.Error("payment execution failed", "error", execErr, "vendor", p.VendorAddress)
			result = payment.TxResult{Success: false, Mode: result.Mode, Err: execErr.Error()}
		}
		exec = &result
	}

	entry, err := s.recorder.Record(ctx, p, dec, exec)
	if err != nil {
		// The decision exists but the audit trail does not. This must never
		// be reported as success.
		s.logger.Error("decision not recorded", "error", err)
		http.Error(w, `{"error":"decision could not be recorded; treat as not executed"}`, http.StatusInternalServerError)
		return
	}

	s.maybeAlertVelocity(ctx, entry, dec)

	status := http.StatusOK
	if entry.Decision == model.DecisionRejected {
		status = http.StatusUnprocessableEntity
	}

	resp := proposalResponse{
		AuditID:         entry.ID.String(),
		Decision:        string(entry.Decision),
		Reasoning:       entry.Reasoning,
		Confidence:      entry.AIConfidence,
		Details:         dec.Details,
		VendorName:      entry.VendorName,
		VendorAddress:   entry.VendorAddress,
		Amount:          entry.Amount,
		Category:        string(entry.Category),
		TransactionHash: entry.TransactionHash,
	}
	if exec != nil {
		resp.ExecutionMode = exec.Mode
	}

	writeJSON(w, status, resp)
}

func (s *Server) maybeAlertVelocity(ctx context.Context, entry *model.AuditLogEntry, dec *model.AuditDecision) {
	if dec.Details == nil || dec.Details[model.CheckVelocity] != model.CheckFailed {
		return
	}
	_ = s.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeVelocityRejected,
		Title:   "velocity limit rejection",
		Message: entry.Reasoning,
		Fields: map[string]string{
			"vendor": entry.VendorAddress,
			"amount": entry.Amount.String(),
		},
	})
}

// --- Audit trail endpoint ---

type auditResponse struct {
	ID              string          `json:"id"`
	VendorName      string          `json:"vendor_name"`
	VendorAddress   string          `json:"vendor_address"`
	Amount          decimal.Decimal `json:"amount"`
	Category        string          `json:"category"`
	Decision        string          `json:"decision"`
	Reasoning       string          `json:"reasoning"`
	AIConfidence    decimal.Decimal `json:"ai_confidence"`
	TransactionHash *string         `json:"transaction_hash,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxAuditLimit {
			http.Error(w, `{"error":"limit must be an integer between 1 and 500"}`, http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := s.auditRepo.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list audits failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	resp := make([]auditResponse, len(entries))
	for i, e := range entries {
		resp[i] = auditResponse{
			ID:              e.ID.String(),
			VendorName:      e.VendorName,
			VendorAddress:   e.VendorAddress,
			Amount:          e.Amount,
			Category:        string(e.Category),
			Decision:        string(e.Decision),
			Reasoning:       e.Reasoning,
			AIConfidence:    e.AIConfidence,
			TransactionHash: e.TransactionHash,
			CreatedAt:       e.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Vendor whitelist endpoints ---

type vendorResponse struct {
	WalletAddress       string          `json:"wallet_address"`
	VendorName          string          `json:"vendor_name"`
	Category            string          `json:"category"`
	MaxTransactionLimit decimal.Decimal `json:"max_transaction_limit"`
	IsActive            bool            `json:"is_active"`
}

func (s *Server) handleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := s.vendorRepo.ListActive(r.Context())
	if err != nil {
		s.logger.Error("list vendors failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	resp := make([]vendorResponse, len(vendors))
	for i, v := range vendors {
		resp[i] = vendorResponse{
			WalletAddress:       v.WalletAddress,
			VendorName:          v.VendorName,
			Category:            string(v.Category),
			MaxTransactionLimit: v.MaxTransactionLimit,
			IsActive:            v.IsActive,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type upsertVendorRequest struct {
	WalletAddress       string          `json:"wallet_address"`
	VendorName          string          `json:"vendor_name"`
	Category            string          `json:"category"`
	MaxTransactionLimit decimal.Decimal `json:"max_transaction_limit"`
	IsActive            *bool           `json:"is_active"`
}

func (s *Server) handleUpsertVendor(w http.ResponseWriter, r *http.Request) {
	var req upsertVendorRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.WalletAddress == "" || req.VendorName == "" || req.Category == "" {
		http.Error(w, `{"error":"wallet_address, vendor_name, and category are required"}`, http.StatusBadRequest)
		return
	}
	if !compliance.IsValidAddress(req.WalletAddress) {
		http.Error(w, `{"error":"wallet_address must be 0x followed by 40 hex characters"}`, http.StatusBadRequest)
		return
	}
	category, ok := model.ParseCategory(req.Category)
	if !ok {
		http.Error(w, `{"error":"unknown category"}`, http.StatusBadRequest)
		return
	}
	if !req.MaxTransactionLimit.IsPositive() {
		http.Error(w, `{"error":"max_transaction_limit must be positive"}`, http.StatusBadRequest)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	vendor := &model.WhitelistedVendor{
		WalletAddress:       strings.ToLower(req.WalletAddress),
		VendorName:          req.VendorName,
		Category:            category,
		MaxTransactionLimit: req.MaxTransactionLimit,
		IsActive:            active,
	}

	if err := s.vendorRepo.Upsert(r.Context(), vendor); err != nil {
		s.logger.Error("upsert vendor failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	s.logger.Info("vendor whitelisted via API",
		"address", vendor.WalletAddress,
		"name", vendor.VendorName,
		"category", vendor.Category,
		"active", vendor.IsActive,
	)

	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// --- Budget endpoint ---

type budgetResponse struct {
	Category     string          `json:"category"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
	CurrentSpent decimal.Decimal `json:"current_spent"`
	Remaining    decimal.Decimal `json:"remaining"`
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.budgetRepo.List(r.Context())
	if err != nil {
		s.logger.Error("list budgets failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	resp := make([]budgetResponse, len(budgets))
	for i, b := range budgets {
		resp[i] = budgetResponse{
			Category:     string(b.Category),
			MonthlyLimit: b.MonthlyLimit,
			CurrentSpent: b.CurrentSpent,
			Remaining:    b.Remaining(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Reconciliation endpoint ---

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		http.Error(w, `{"error":"reconciliation not available"}`, http.StatusServiceUnavailable)
		return
	}

	report, err := s.reconciler.Run(r.Context())
	if err != nil {
		s.logger.Error("reconciliation failed", "error", err)
		http.Error(w, `{"error":"reconciliation failed"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// --- Health endpoint ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.PingContext(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": "database unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
