package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/server/internal/alerts"
	"github.com/hydrostack/hydrostack/server/internal/store"
)

// defaultReadingsWindow is used when a readings query omits from.
const defaultReadingsWindow = 24 * time.Hour

// AlertLister returns firing and recently resolved alerts.
type AlertLister interface {
	Active() []*alerts.Alert
}

// ReadingQuerier reads archived readings.
type ReadingQuerier interface {
	Readings(ctx context.Context, station, label string, from, to time.Time) ([]types.Reading, error)
}

// Options wires optional data sources. Nil fields disable the endpoints
// that need them.
type Options struct {
	Alerts  AlertLister
	Archive ReadingQuerier
	Now     func() time.Time
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store *store.Store
	opt   Options
	mux   *http.ServeMux
}

// New creates a Handler wired to the given status store and registers all routes.
func New(st *store.Store, opt Options) http.Handler {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	h := &Handler{store: st, opt: opt, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/stations", h.listStations)
	h.mux.HandleFunc("/api/v1/stations/", h.station) // subtree: {id} and {id}/readings
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: station counts and an overall state.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{StationCount: len(entries), AlertCount: len(h.firing())}

	if len(entries) == 0 {
		resp.State = "unknown"
		jsonResp(w, http.StatusOK, resp)
		return
	}

	for _, e := range entries {
		if e.Status.Pacing.On {
			resp.SamplingCount++
		}
		switch worstLevel(computeDiagnostics(&e.Status)) {
		case levelCritical:
			resp.CriticalCount++
		case levelWarning:
			resp.WarningCount++
		}
	}

	resp.State = "ok"
	if resp.CriticalCount > 0 || resp.WarningCount > 0 || resp.AlertCount > 0 {
		resp.State = "degraded"
	}
	jsonResp(w, http.StatusOK, resp)
}

// listStations returns GET /api/v1/stations: all live stations.
func (h *Handler) listStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.stations())
}

// station routes GET /api/v1/stations/{id} and /api/v1/stations/{id}/readings.
func (h *Handler) station(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/stations/"), "/")
	id, sub, _ := strings.Cut(rest, "/")
	switch {
	case id == "":
		h.listStations(w, r)
	case sub == "":
		e, ok := h.store.Get(id)
		// Stale entries are treated as not found.
		if !ok || !h.store.Fresh(e) {
			jsonErr(w, http.StatusNotFound, "station not found")
			return
		}
		jsonResp(w, http.StatusOK, toStationResponse(e))
	case sub == "readings":
		h.readings(w, r, id)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// readings returns archived readings for ?label= between ?from= and ?to=
// (RFC3339; default the last 24 hours).
func (h *Handler) readings(w http.ResponseWriter, r *http.Request, station string) {
	if h.opt.Archive == nil {
		jsonErr(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}
	q := r.URL.Query()
	label := q.Get("label")
	if label == "" {
		jsonErr(w, http.StatusBadRequest, "label is required")
		return
	}
	to := h.opt.Now()
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "to: want RFC3339")
			return
		}
		to = t
	}
	from := to.Add(-defaultReadingsWindow)
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "from: want RFC3339")
			return
		}
		from = t
	}
	if from.After(to) {
		jsonErr(w, http.StatusBadRequest, "from is after to")
		return
	}

	rs, err := h.opt.Archive.Readings(r.Context(), station, label, from, to)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rs == nil {
		rs = []types.Reading{}
	}
	jsonResp(w, http.StatusOK, ReadingsResponse{Station: station, Label: label, From: from, To: to, Readings: rs})
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.activeAlerts())
}

// snapshot returns GET /api/v1/snapshot: all live stations plus alerts.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, SnapshotResponse{
		Stations:    h.stations(),
		Alerts:      h.activeAlerts(),
		GeneratedAt: h.opt.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) stations() []StationResponse {
	entries := h.store.List()
	out := make([]StationResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toStationResponse(e))
	}
	return out
}

func (h *Handler) activeAlerts() []*alerts.Alert {
	if h.opt.Alerts == nil {
		return []*alerts.Alert{}
	}
	return h.opt.Alerts.Active()
}

func (h *Handler) firing() []*alerts.Alert {
	var out []*alerts.Alert
	for _, a := range h.activeAlerts() {
		if a.State == alerts.StateFiring {
			out = append(out, a)
		}
	}
	return out
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// worstLevel returns the most severe level among hints.
func worstLevel(hints []DiagnosticHint) string {
	worst := levelOK
	for _, h := range hints {
		if levelRank(h.Level) < levelRank(worst) {
			worst = h.Level
		}
	}
	return worst
}

// toStationResponse maps a store.Entry to its JSON representation.
func toStationResponse(e store.Entry) StationResponse {
	return StationResponse{
		StationStatus: e.Status,
		Diagnostics:   computeDiagnostics(&e.Status),
		LastSeen:      e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
