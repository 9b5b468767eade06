package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/analytics"
	"github.com/xkilldash9x/aegiscore/internal/incident"
	"github.com/xkilldash9x/aegiscore/internal/topology"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultWindow is how many recent alerts the list and statistics
	// endpoints read when no limit is given.
	DefaultWindow = 100
	// MaxWindow caps the limit query parameter.
	MaxWindow = 1000

	// SourceHeader tells clients where a list was served from, so an empty
	// list can be told apart from an unavailable store.
	SourceHeader = "X-Data-Source"
)

// Handlers serves the analyst API.
type Handlers struct {
	log        *zap.Logger
	store      schemas.AlertStore
	health     StoreHealth
	incidents  *incident.Service
	projector  *topology.Projector
	classifier string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	logger *zap.Logger,
	store schemas.AlertStore,
	health StoreHealth,
	incidents *incident.Service,
	projector *topology.Projector,
	classifier string,
) *Handlers {
	return &Handlers{
		log:        logger.Named("api"),
		store:      store,
		health:     health,
		incidents:  incidents,
		projector:  projector,
		classifier: classifier,
	}
}

// RegisterRoutes mounts every API route on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)

		r.Route("/threats", func(r chi.Router) {
			r.Get("/", h.HandleListThreats)
			r.Get("/aggregated", h.HandleAggregated)
			r.Get("/high-risk", h.HandleHighRisk)
			r.Get("/risk-summary", h.HandleRiskSummary)
			r.Post("/{id}/resolve", h.HandleResolve)
			r.Post("/{id}/block", h.HandleBlock)
		})

		r.Get("/dashboard/summary", h.HandleSummary)
		r.Get("/alerts/critical", h.HandleCritical)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/", h.HandleRiskSummary)
			r.Get("/risk-summary", h.HandleRiskSummary)
			r.Get("/attack-types", h.HandleAttackTypes)
			r.Get("/geo", h.HandleGeo)
			r.Get("/history", h.HandleHistory)
		})

		r.Get("/network/topology", h.HandleTopology)
	})
}

// -- Health --

// HandleHealth reports the serving mode. It always answers 200; a store outage
// degrades the core rather than taking it down.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Classifier: h.classifier}
	if h.health != nil {
		resp.Mode = h.health.Mode(r.Context())
		state := h.health.GateState()
		resp.Gate = state.Circuit.String()
		if !state.Until.IsZero() {
			until := state.Until
			resp.OpenUntil = &until
		}
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// -- Threats --

// HandleListThreats lists alerts newest first. Query parameters: status
// (all, active, resolved) and limit.
func (h *Handlers) HandleListThreats(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := schemas.ParseStatusFilter(r.URL.Query().Get("status"))
	res := h.store.Query(r.Context(), limit, filter)
	w.Header().Set(SourceHeader, string(res.Source))
	h.respondWithJSON(w, http.StatusOK, res.Alerts)
}

// HandleResolve marks one alert Resolved.
func (h *Handlers) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.incidents.Resolve(r.Context(), id)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to resolve alert.")
		return
	}
	h.respondWithJSON(w, http.StatusOK, rec)
}

// HandleBlock requests a block of the alert's source.
func (h *Handlers) HandleBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.incidents.Block(r.Context(), id)
	if err != nil {
		h.respondWithStoreError(w, err, "Failed to block source.")
		return
	}
	h.respondWithJSON(w, http.StatusOK, res)
}

// HandleAggregated groups recent alerts by source and attack type.
func (h *Handlers) HandleAggregated(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, analytics.Aggregate(h.recent(w, r)))
}

// HandleHighRisk lists recent alerts at the high level or above.
func (h *Handlers) HandleHighRisk(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, analytics.HighRisk(h.recent(w, r)))
}

// -- Dashboard --

func (h *Handlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, analytics.Summarize(h.recent(w, r)))
}

func (h *Handlers) HandleRiskSummary(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, analytics.RiskLevels(h.recent(w, r)))
}

func (h *Handlers) HandleAttackTypes(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, analytics.AttackTypes(h.recent(w, r)))
}

func (h *Handlers) HandleGeo(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, analytics.Geo(h.recent(w, r)))
}

func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, analytics.History(h.recent(w, r)))
}

func (h *Handlers) HandleCritical(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, analytics.Critical(h.recent(w, r), analytics.CriticalLimit))
}

// HandleTopology projects active alerts onto the asset graph.
func (h *Handlers) HandleTopology(w http.ResponseWriter, r *http.Request) {
	topo, source := h.projector.Project(r.Context())
	w.Header().Set(SourceHeader, string(source))
	h.respondWithJSON(w, http.StatusOK, topo)
}

// -- Helpers --

// recent reads the statistics window and tags the response with its source.
func (h *Handlers) recent(w http.ResponseWriter, r *http.Request) []schemas.AlertRecord {
	res := h.store.Query(r.Context(), DefaultWindow, schemas.FilterAll)
	w.Header().Set(SourceHeader, string(res.Source))
	return res.Alerts
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultWindow, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, MaxWindow), nil
}

func (h *Handlers) respondWithStoreError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, schemas.ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, "Threat not found")
		return
	}
	h.log.Error(msg, zap.Error(err))
	h.respondWithError(w, http.StatusInternalServerError, msg)
}

// respondWithError sends a JSON error body.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{Error: message})
}

func (h *Handlers) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
