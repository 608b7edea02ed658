package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/station/internal/gpvar"
	"github.com/hydrostack/hydrostack/station/internal/pacing"
)

// Program is the part of the pacing engine operators drive.
type Program interface {
	Snapshot() pacing.State
	Samples() []pacing.SampleRecord
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ManualTrigger(ctx context.Context) error
	ResetParams(ctx context.Context) error
	ResetCarousel(ctx context.Context) error
}

// Vars is the GP variable bank.
type Vars interface {
	Get(label string) (float64, error)
	Set(label string, v float64) error
	List() []gpvar.Var
}

// Exporter writes the datalog as CSV.
type Exporter interface {
	ExportCSV(ctx context.Context, w io.Writer, station string, from, to time.Time) error
}

// Pump is a sampler with a reversible pump and a readable result register.
type Pump interface {
	Pump(ctx context.Context, reverse bool) error
	ReadResult(ctx context.Context) (uint16, error)
}

// Options wires a Handler.
type Options struct {
	Station string
	Program Program
	Vars    Vars
	Log     Exporter
	// Pump is nil when the sampler has no pump control.
	Pump Pump
	// Resolutions lists the camera frame sizes; nil without a camera.
	Resolutions []string
	// Status returns the current station status.
	Status func() types.StationStatus
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler serves /api/v1/* on the station.
type Handler struct {
	opt Options
	mux *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(opt Options) http.Handler {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	h := &Handler{opt: opt, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/samples", h.samples)
	h.mux.HandleFunc("/api/v1/sampling/", h.command)
	h.mux.HandleFunc("/api/v1/vars", h.listVars)
	h.mux.HandleFunc("/api/v1/vars/", h.setVar)
	h.mux.HandleFunc("/api/v1/export", h.export)
	h.mux.HandleFunc("/api/v1/sampler/pump", h.pump)
	h.mux.HandleFunc("/api/v1/sampler/result", h.result)
	h.mux.HandleFunc("/api/v1/camera/resolutions", h.resolutions)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.opt.Status != nil {
		jsonResp(w, http.StatusOK, h.opt.Status())
		return
	}
	jsonResp(w, http.StatusOK, types.StationStatus{
		Station: h.opt.Station,
		Time:    h.opt.Now().UTC(),
		Pacing:  Pacing(h.opt.Program.Snapshot()),
	})
}

func (h *Handler) samples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	recs := h.opt.Program.Samples()
	out := make([]sampleResponse, 0, len(recs))
	for _, s := range recs {
		out = append(out, sampleResponse{
			Time:          s.Time.UTC(),
			Pacing:        s.Pacing,
			Bottle:        s.Bottle,
			Aliquot:       s.Aliquot,
			TotalAliquots: s.TotalAliquots,
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// command handles POST /api/v1/sampling/{start|stop|trigger|reset|reset-carousel}.
func (h *Handler) command(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p := h.opt.Program
	var op func(context.Context) error
	switch strings.TrimPrefix(r.URL.Path, "/api/v1/sampling/") {
	case "start":
		op = p.Start
	case "stop":
		op = p.Stop
	case "trigger":
		op = p.ManualTrigger
	case "reset":
		op = p.ResetParams
	case "reset-carousel":
		op = p.ResetCarousel
	default:
		jsonErr(w, http.StatusNotFound, "unknown command")
		return
	}
	if err := op(r.Context()); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, pacing.ErrAlreadyOn) {
			code = http.StatusConflict
		}
		jsonErr(w, code, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, Pacing(p.Snapshot()))
}

func (h *Handler) listVars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	vars := h.opt.Vars.List()
	out := make([]varResponse, 0, len(vars))
	for _, v := range vars {
		out = append(out, varResponse(v))
	}
	jsonResp(w, http.StatusOK, out)
}

// setVar handles GET and PUT /api/v1/vars/{label}.
func (h *Handler) setVar(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimPrefix(r.URL.Path, "/api/v1/vars/")
	if label == "" {
		h.listVars(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var body struct {
			Value *float64 `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
			jsonErr(w, http.StatusBadRequest, `body must be {"value": <number>}`)
			return
		}
		if err := h.opt.Vars.Set(label, *body.Value); err != nil {
			jsonErr(w, varStatus(err), err.Error())
			return
		}
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	v, err := h.opt.Vars.Get(label)
	if err != nil {
		jsonErr(w, varStatus(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, varResponse{Label: label, Value: v})
}

// export handles GET /api/v1/export?from=RFC3339&to=RFC3339. The range
// defaults to the last 24h.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	to := h.opt.Now()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("from: %v", err))
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("to: %v", err))
			return
		}
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.csv"`, h.opt.Station, to.Format("20060102")))
	if err := h.opt.Log.ExportCSV(r.Context(), w, h.opt.Station, from, to); err != nil {
		// Headers are out; the truncated body is all the client gets.
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// pump handles POST /api/v1/sampler/pump?reverse=1.
func (h *Handler) pump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.opt.Pump == nil {
		jsonErr(w, http.StatusNotFound, "sampler has no pump control")
		return
	}
	reverse := false
	if v := r.URL.Query().Get("reverse"); v != "" {
		var err error
		if reverse, err = strconv.ParseBool(v); err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("reverse: %v", err))
			return
		}
	}
	if err := h.opt.Pump.Pump(r.Context(), reverse); err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	dir := "forward"
	if reverse {
		dir = "reverse"
	}
	jsonResp(w, http.StatusOK, pumpResponse{Direction: dir})
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.opt.Pump == nil {
		jsonErr(w, http.StatusNotFound, "sampler has no result register")
		return
	}
	code, err := h.opt.Pump.ReadResult(r.Context())
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, resultResponse{Code: code})
}

func (h *Handler) resolutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.opt.Resolutions == nil {
		jsonErr(w, http.StatusNotFound, "no camera configured")
		return
	}
	jsonResp(w, http.StatusOK, h.opt.Resolutions)
}

func varStatus(err error) int {
	switch {
	case errors.Is(err, gpvar.ErrUnknownLabel):
		return http.StatusNotFound
	case errors.Is(err, gpvar.ErrFull):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type sampleResponse struct {
	Time          time.Time `json:"time"`
	Pacing        float64   `json:"pacing"`
	Bottle        int       `json:"bottle"`
	Aliquot       int       `json:"aliquot"`
	TotalAliquots int       `json:"total_aliquots"`
}

type varResponse struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type pumpResponse struct {
	Direction string `json:"direction"`
}

type resultResponse struct {
	Code uint16 `json:"code"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
