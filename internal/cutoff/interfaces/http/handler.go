package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"billing-cloud/internal/audit"
	"billing-cloud/internal/auth"
	cutoffapp "billing-cloud/internal/cutoff/application"
	cutoff "billing-cloud/internal/cutoff/domain"
)

const (
	basePath      = "/api/v1/cutoffs"
	overridesPath = basePath + "/overrides"
)

// Handler provides cutoff HTTP endpoints.
type Handler struct {
	service       *cutoffapp.Service
	clientChecker auth.ClientChecker
	auditLogger   audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *cutoffapp.Service, clientChecker auth.ClientChecker, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("cutoff handler: nil service")
	}
	return &Handler{service: service, clientChecker: clientChecker, auditLogger: auditLogger}, nil
}

// ServeHTTP handles /api/v1/cutoffs and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == basePath+"/resolve":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleResolve(w, r)
	case path == basePath+"/label":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleLabel(w, r)
	case path == overridesPath:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(path, overridesPath+"/"):
		level, entityID, ok := parseOverridePath(strings.TrimPrefix(path, overridesPath+"/"))
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, level, entityID)
		case http.MethodPut:
			h.handleSet(w, r, level, entityID)
		case http.MethodDelete:
			h.handleClear(w, r, level, entityID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type resolveResponse struct {
	Cutoff cutoff.Resolved `json:"cutoff"`
	Regime string          `json:"regime"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromQuery(r)
	if err := h.ensureClient(r.Context(), scope.ClientID); err != nil {
		respondServiceError(w, err)
		return
	}
	resolved, err := h.service.Resolve(r.Context(), scope)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Cutoff: resolved, Regime: resolved.Regime().String()})
}

func (h *Handler) handleLabel(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromQuery(r)
	raw := r.URL.Query().Get("at")
	if raw == "" {
		http.Error(w, "at required", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		http.Error(w, "invalid at", http.StatusBadRequest)
		return
	}
	if err := h.ensureClient(r.Context(), scope.ClientID); err != nil {
		respondServiceError(w, err)
		return
	}
	result, err := h.service.Label(r.Context(), scope, at)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	level := cutoff.Level(r.URL.Query().Get("level"))
	if level != "" && !level.IsValid() {
		http.Error(w, "invalid level", http.StatusBadRequest)
		return
	}
	overrides, err := h.service.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, visibleOverrides(r.Context(), overrides, level))
}

// visibleOverrides drops client overrides of other clients for a client-scoped token.
// A non-empty level keeps only that level.
func visibleOverrides(ctx context.Context, overrides []cutoff.Override, level cutoff.Level) []cutoff.Override {
	clientID := auth.ClientIDFromContext(ctx)
	visible := make([]cutoff.Override, 0, len(overrides))
	for _, override := range overrides {
		if level != "" && override.Level != level {
			continue
		}
		if clientID != "" && override.Level == cutoff.LevelClient && override.EntityID != clientID {
			continue
		}
		visible = append(visible, override)
	}
	return visible
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, level cutoff.Level, entityID string) {
	if level == cutoff.LevelClient {
		if err := h.ensureClient(r.Context(), entityID); err != nil {
			respondServiceError(w, err)
			return
		}
	}
	overrides, err := h.service.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	for _, override := range overrides {
		if override.Level == level && override.EntityID == entityID {
			writeJSON(w, http.StatusOK, override)
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request, level cutoff.Level, entityID string) {
	var req cutoff.Setting
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	override, err := h.service.SetOverride(r.Context(), cutoffapp.OverrideCommand{
		Level:    level,
		EntityID: entityID,
		Day:      req.Day,
		Hour:     req.Hour,
		Minute:   req.Minute,
		Second:   req.Second,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, override)
	h.logAudit(r, "cutoff.override.set", level, entityID, map[string]any{
		"day":    req.Day,
		"hour":   req.Hour,
		"minute": req.Minute,
		"second": req.Second,
	})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request, level cutoff.Level, entityID string) {
	if err := h.service.ClearOverride(r.Context(), level, entityID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "cutoff.override.clear", level, entityID, nil)
}

func (h *Handler) ensureClient(ctx context.Context, clientID string) error {
	if h.clientChecker == nil {
		return auth.EnsureClientScope(ctx, clientID)
	}
	return h.clientChecker.EnsureClientAccess(ctx, clientID)
}

func (h *Handler) logAudit(r *http.Request, action string, level cutoff.Level, entityID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	clientID := ""
	if level == cutoff.LevelClient {
		clientID = entityID
	}
	entry := audit.FromRequest(r, action, "cutoff_override", string(level)+"/"+entityID, clientID, meta)
	_ = h.auditLogger.Log(r.Context(), entry)
}

// parseOverridePath splits "{level}/{id}". The system level takes no id.
func parseOverridePath(rest string) (cutoff.Level, string, bool) {
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	level, err := cutoff.ParseLevel(parts[0])
	if err != nil {
		return "", "", false
	}
	if level == cutoff.LevelSystem {
		return level, "", len(parts) == 1
	}
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	return level, parts[1], true
}

func scopeFromQuery(r *http.Request) cutoff.Scope {
	q := r.URL.Query()
	return cutoff.Scope{
		UnitID:     q.Get("unit_id"),
		ClientID:   q.Get("client_id"),
		ProviderID: q.Get("provider_id"),
	}
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
	case errors.Is(err, cutoff.ErrAmbiguousOverride):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, cutoff.ErrReadOnlyStore):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(err, cutoff.ErrInvalidScope),
		errors.Is(err, cutoff.ErrInvalidSetting),
		errors.Is(err, cutoff.ErrInvalidLevel),
		errors.Is(err, cutoff.ErrEmptyEntityID),
		errors.Is(err, cutoffapp.ErrInvalidCommand):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
