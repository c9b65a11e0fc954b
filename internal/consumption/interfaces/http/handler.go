package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"billing-cloud/internal/audit"
	"billing-cloud/internal/auth"
	reportapp "billing-cloud/internal/consumption/application"
	consumption "billing-cloud/internal/consumption/domain"
	cutoff "billing-cloud/internal/cutoff/domain"
	"billing-cloud/internal/observability/metrics"
)

const (
	generatePath = "/api/v1/reports/generate"
	batchPath    = "/api/v1/reports/batch"
	exportXLSX   = "/api/v1/reports/export.xlsx"
	exportPDF    = "/api/v1/reports/export.pdf"

	maxBatchSize = 100
)

// Handler handles report APIs.
type Handler struct {
	service       *reportapp.ReportService
	clientChecker auth.ClientChecker
	auditLogger   audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *reportapp.ReportService, clientChecker auth.ClientChecker, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("report handler: nil service")
	}
	return &Handler{service: service, clientChecker: clientChecker, auditLogger: auditLogger}, nil
}

// ServeHTTP handles report routes under /api/v1/reports.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case generatePath:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGenerate(w, r)
	case batchPath:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleBatch(w, r)
	case exportXLSX:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r, "xlsx")
	case exportPDF:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req reportapp.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.ensureClient(r.Context(), req.ClientID); err != nil {
		respondServiceError(w, err)
		return
	}
	report, err := h.service.Generate(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
	h.logAudit(r, "report.generate", report, map[string]any{
		"periods":         len(report.Periods),
		"partial_periods": report.PartialPeriods,
		"cached":          report.Cached,
	})
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []reportapp.ReportRequest `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Requests) == 0 || len(req.Requests) > maxBatchSize {
		http.Error(w, "requests must hold 1 to 100 items", http.StatusBadRequest)
		return
	}
	for _, item := range req.Requests {
		if err := h.ensureClient(r.Context(), item.ClientID); err != nil {
			respondServiceError(w, err)
			return
		}
	}
	reports, err := h.service.GenerateBatch(r.Context(), req.Requests)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport(format, result, time.Since(start))
	}()

	req, err := requestFromQuery(r.URL.Query(), h.service.Location())
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.ensureClient(r.Context(), req.ClientID); err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	report, err := h.service.Generate(r.Context(), req)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = BuildReportPDF(report)
		contentType = "application/pdf"
	default:
		data, err = BuildReportXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="report-`+report.ClientID+`.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, "report.export", report, map[string]any{"format": format})
}

// requestFromQuery reads client_id, provider_id, unit_id, period, from, to,
// include_partial, floor and repeated meter_id parameters.
func requestFromQuery(q url.Values, loc *time.Location) (reportapp.ReportRequest, error) {
	req := reportapp.ReportRequest{
		ClientID:   q.Get("client_id"),
		ProviderID: q.Get("provider_id"),
		UnitID:     q.Get("unit_id"),
		Filter: consumption.Filter{
			Floor:    q.Get("floor"),
			MeterIDs: q["meter_id"],
		},
	}
	if raw := q.Get("period"); raw != "" {
		label, err := cutoff.ParseLabel(raw)
		if err != nil {
			return req, err
		}
		req.Period = &label
	}
	var err error
	if req.From, err = parseTimeParam(q.Get("from"), loc); err != nil {
		return req, errors.New("invalid from")
	}
	if req.To, err = parseTimeParam(q.Get("to"), loc); err != nil {
		return req, errors.New("invalid to")
	}
	if raw := q.Get("include_partial"); raw != "" {
		if req.IncludePartial, err = strconv.ParseBool(raw); err != nil {
			return req, errors.New("invalid include_partial")
		}
	}
	return req, nil
}

// parseTimeParam accepts RFC3339 or a bare date interpreted in loc.
func parseTimeParam(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", raw, loc)
}

func (h *Handler) ensureClient(ctx context.Context, clientID string) error {
	if h.clientChecker == nil {
		return auth.EnsureClientScope(ctx, clientID)
	}
	return h.clientChecker.EnsureClientAccess(ctx, clientID)
}

func (h *Handler) logAudit(r *http.Request, action string, report *reportapp.Report, meta map[string]any) {
	if h.auditLogger == nil || report == nil {
		return
	}
	if meta == nil {
		meta = make(map[string]any, 1)
	}
	if report.Cutoff.Setting != (cutoff.Setting{}) {
		meta["cutoff"] = report.Cutoff.Setting.String()
	}
	entry := audit.FromRequest(r, action, "report", report.ID, report.ClientID, meta)
	_ = h.auditLogger.Log(r.Context(), entry)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, auth.ErrClientMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, auth.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, consumption.ErrEmptyInput):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, cutoff.ErrAmbiguousOverride):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, reportapp.ErrInvalidRequest),
		errors.Is(err, cutoff.ErrInvalidScope),
		errors.Is(err, consumption.ErrInvalidWindow),
		errors.Is(err, consumption.ErrEmptyClientID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
