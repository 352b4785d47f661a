// Package api exposes HTTP handlers for the campus carbon service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nissan15/hackathon/internal/auth"
	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/greenops"
	"github.com/Nissan15/hackathon/internal/recommend"
)

// ReportBuilder produces dashboard reports.
type ReportBuilder interface {
	Build(ctx context.Context, startRaw, endRaw string) (dashboard.Report, error)
}

// Recommender lists improvement suggestions.
type Recommender interface {
	Recommendations(ctx context.Context) ([]recommend.Recommendation, error)
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	service   *domain.Service
	reports   ReportBuilder
	recs      Recommender
	authn     *auth.Authenticator
	debugMode bool
	logger    zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithDebugMode enables the development-only endpoints.
func WithDebugMode(enabled bool) Option {
	return func(h *Handler) { h.debugMode = enabled }
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, reports ReportBuilder, recs Recommender, authn *auth.Authenticator, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		reports: reports,
		recs:    recs,
		authn:   authn,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/login", h.login)
	mux.HandleFunc("/api/data", h.addData)
	mux.HandleFunc("/api/humans", h.addHumanCount)
	mux.HandleFunc("/api/upload_csv", h.uploadCSV)
	mux.HandleFunc("/api/dashboard", h.dashboard)
	mux.HandleFunc("/api/recommendations", h.recommendations)
	mux.HandleFunc("/api/equivalencies", h.equivalencies)
	mux.HandleFunc("/api/factors", h.factors)
	mux.HandleFunc("/debug/reset_admin", h.resetAdmin)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing username or password")
		return
	}

	session, err := h.authn.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing username or password")
		return
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.logger.Info().Str("username", req.Username).Msg("login rejected")
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
		return
	case err != nil:
		h.serverError(w, err, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		Username:  session.Username,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) addData(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, auth.ScopeActivityWrite) {
		return
	}

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields")
		return
	}

	record, err := h.service.RecordActivity(r.Context(), req.input())
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.serverError(w, err, "Failed to insert data")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Data added successfully", ID: record.ID})
}

func (h *Handler) addHumanCount(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, auth.ScopeActivityWrite) {
		return
	}

	var req HumanCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "Human count must be a valid integer")
		return
	}
	if req.Date == "" || req.Humans == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields: date and humans")
		return
	}

	_, err := h.service.UpsertHumanCount(r.Context(), req.Date, int(*req.Humans))
	switch {
	case errors.Is(err, domain.ErrInvalidDateFormat):
		writeError(w, http.StatusBadRequest, "invalid_date", "Invalid date format. Use YYYY-MM-DD")
		return
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", "Human count must be non-negative")
		return
	case errors.Is(err, domain.ErrSchemaMissing):
		h.logger.Error().Err(err).Msg("human_count table missing")
		writeError(w, http.StatusInternalServerError, "schema_missing", "Database table not found. Run `campuscarbon migrate` to initialize the database.")
		return
	case err != nil:
		h.serverError(w, err, "Failed to insert/update human count")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Human count added/updated successfully"})
}

func (h *Handler) uploadCSV(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, auth.ScopeActivityWrite) {
		return
	}

	inputs, err := decodeUpload(r)
	if err != nil {
		h.logger.Debug().Err(err).Msg("upload rejected")
		writeError(w, http.StatusBadRequest, "invalid_csv", "Invalid CSV format.")
		return
	}

	records, err := h.service.ImportActivities(r.Context(), inputs)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "invalid_csv", "Invalid CSV format.")
			return
		}
		h.serverError(w, err, "Failed to insert CSV data.")
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{Success: true, Message: recordsInserted(len(records))})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	report, err := h.reports.Build(r.Context(), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.reportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) equivalencies(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	report, err := h.reports.Build(r.Context(), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		h.reportError(w, err)
		return
	}

	out, err := greenops.FromTonnes(report.KPIs.TotalEmissions)
	if err != nil {
		h.serverError(w, err, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, EquivalencyResponse{
		StartDate:      domain.FormatDate(report.Range.Start),
		EndDate:        domain.FormatDate(report.Range.End),
		TotalEmissions: report.KPIs.TotalEmissions,
		Equivalencies:  out,
	})
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	recs, err := h.recs.Recommendations(r.Context())
	if err != nil {
		h.reportError(w, err)
		return
	}
	if recs == nil {
		recs = []recommend.Recommendation{}
	}
	writeJSON(w, http.StatusOK, RecommendationsResponse{Recommendations: recs})
}

func (h *Handler) factors(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	factors, err := h.service.EmissionFactors(r.Context())
	if err != nil {
		h.reportError(w, err)
		return
	}
	views := make([]FactorView, 0, len(factors))
	for _, f := range factors {
		views = append(views, FactorView{SourceType: f.SourceType, Factor: f.Factor, Unit: f.Unit})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) resetAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.debugMode {
		writeError(w, http.StatusNotFound, "not_found", "Not found")
		return
	}
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.authn.ResetAdmin(r.Context()); err != nil {
		h.serverError(w, err, "Failed to reset admin account")
		return
	}
	h.logger.Warn().Msg("admin account reset through debug endpoint")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Admin password reset to " + auth.AdminPassword})
}

// reportError maps read-path failures onto status codes without leaking causes.
func (h *Handler) reportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidDateFormat):
		writeError(w, http.StatusBadRequest, "invalid_date", "Invalid date format. Use YYYY-MM-DD")
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.logger.Error().Err(err).Msg("storage unavailable")
		writeError(w, http.StatusInternalServerError, "storage_unavailable", "Database connection error")
	default:
		h.serverError(w, err, "Internal error")
	}
}

func (h *Handler) serverError(w http.ResponseWriter, err error, detail string) {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		detail = "Database connection error"
	}
	h.logger.Error().Err(err).Msg(detail)
	writeError(w, http.StatusInternalServerError, "server_error", detail)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	return false
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// LoginResponse is returned by POST /api/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MessageResponse acknowledges a write.
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// UploadResponse acknowledges a bulk import.
type UploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RecommendationsResponse is returned by GET /api/recommendations.
type RecommendationsResponse struct {
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

// FactorView is one row of the emission factor table.
type FactorView struct {
	SourceType string  `json:"source_type"`
	Factor     float64 `json:"factor"`
	Unit       string  `json:"unit"`
}

// EquivalencyResponse expresses a range total as everyday comparisons.
type EquivalencyResponse struct {
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	TotalEmissions float64         `json:"total_emissions"`
	Equivalencies  greenops.Output `json:"equivalencies"`
}
