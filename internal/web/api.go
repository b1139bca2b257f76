// Package web serves the measurement-wizard HTTP API: measurement catalog,
// instrument registry, topology validation, capability resolution, and
// offline composition checks. The API is a thin shell over the core
// packages; it owns no policy of its own.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snspd-lab/labwizard/internal/compose"
	"github.com/snspd-lab/labwizard/internal/measurement"
	"github.com/snspd-lab/labwizard/internal/registry"
	"github.com/snspd-lab/labwizard/internal/resolve"
	"github.com/snspd-lab/labwizard/internal/runner"
	"github.com/snspd-lab/labwizard/internal/schema"
	"github.com/snspd-lab/labwizard/internal/topology"
	"github.com/snspd-lab/labwizard/internal/web/stream"
	"github.com/snspd-lab/labwizard/internal/web/wizardsession"
)

// API holds the handler dependencies.
type API struct {
	reg        *registry.Registry
	hub        *stream.Hub
	sessions   wizardsession.Store
	log        *zap.Logger
	sessionTTL time.Duration
}

// NewAPI creates the API against one registry build.
func NewAPI(reg *registry.Registry, hub *stream.Hub, sessions wizardsession.Store, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		reg:        reg,
		hub:        hub,
		sessions:   sessions,
		log:        log,
		sessionTTL: 24 * time.Hour,
	}
}

// Routes assembles the router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/measurements", a.handleMeasurements)
		r.Get("/instruments", a.handleInstruments)
		r.Post("/topology/validate", a.handleValidate)
		r.Post("/resolve", a.handleResolve)
		r.Post("/run", a.handleRun)

		r.Route("/wizard", func(r chi.Router) {
			r.Post("/", a.handleWizardCreate)
			r.Get("/{id}", a.handleWizardGet)
			r.Put("/{id}", a.handleWizardUpdate)
			r.Delete("/{id}", a.handleWizardDelete)
		})
	})

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		stream.ServeWS(a.hub, w, req)
	})

	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"implementations": a.reg.Count(),
	})
}

type fieldPayload struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

func fieldsPayload(s *schema.Schema) []fieldPayload {
	fields := s.Fields()
	out := make([]fieldPayload, len(fields))
	for i, f := range fields {
		out[i] = fieldPayload{
			Name:     f.Name,
			Type:     f.Type.String(),
			Required: f.Required,
			Default:  f.Default,
		}
	}
	return out
}

func (a *API) handleMeasurements(w http.ResponseWriter, _ *http.Request) {
	type payload struct {
		Name         string                        `json:"name"`
		Description  string                        `json:"description"`
		Requirements []measurement.RequirementSpec `json:"requirements"`
		Params       []fieldPayload                `json:"params"`
	}

	var out []payload
	for _, d := range measurement.All() {
		out = append(out, payload{
			Name:         d.Name,
			Description:  d.Description,
			Requirements: d.Requirements,
			Params:       fieldsPayload(d.Params),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleInstruments(w http.ResponseWriter, _ *http.Request) {
	type payload struct {
		QualifiedName   string         `json:"qualified_name"`
		DisplayName     string         `json:"display_name"`
		Description     string         `json:"description,omitempty"`
		Capabilities    []string       `json:"capabilities"`
		SupportsOffline bool           `json:"supports_offline"`
		IsChassis       bool           `json:"is_chassis"`
		ChassisSlots    int            `json:"chassis_slots,omitempty"`
		Config          []fieldPayload `json:"config"`
	}

	var out []payload
	for _, name := range a.reg.List() {
		d, _ := a.reg.Get(name)
		caps := make([]string, 0, len(d.Capabilities()))
		for _, c := range d.Capabilities() {
			caps = append(caps, c.Name())
		}
		out = append(out, payload{
			QualifiedName:   d.QualifiedName(),
			DisplayName:     d.DisplayName(),
			Description:     d.Description(),
			Capabilities:    caps,
			SupportsOffline: d.SupportsOffline(),
			IsChassis:       d.IsChassis(),
			ChassisSlots:    d.ChassisSlots(),
			Config:          fieldsPayload(d.Schema()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type topologyRequest struct {
	TopologyYAML string `json:"topology_yaml"`
}

// validateTopology parses and validates the submitted YAML, writing the
// error payload itself when validation fails.
func (a *API) validateTopology(w http.ResponseWriter, yamlText string) ([]*topology.DeviceNode, bool) {
	raw, err := topology.Parse([]byte(yamlText))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	nodes, verrs := topology.Validate(raw, a.reg)
	if verrs != nil {
		writeJSON(w, http.StatusUnprocessableEntity, verrs)
		return nil, false
	}
	return nodes, true
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req topologyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	nodes, ok := a.validateTopology(w, req.TopologyYAML)
	if !ok {
		return
	}

	var devices []map[string]any
	for _, root := range nodes {
		root.Walk(func(n *topology.DeviceNode) {
			devices = append(devices, map[string]any{
				"path":           n.Path(),
				"implementation": n.Implementation().QualifiedName(),
				"slot":           n.Slot(),
			})
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"devices": devices,
	})
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Measurement string `json:"measurement"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	desc, ok := measurement.Get(req.Measurement)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown measurement %q", req.Measurement))
		return
	}

	candidates, err := resolve.Resolve(desc.Requirements, a.reg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := make(map[string][]string, len(candidates))
	for attr, descs := range candidates {
		names := make([]string, len(descs))
		for i, d := range descs {
			names[i] = d.QualifiedName()
		}
		out[attr] = names
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": out,
		"unfilled":   resolve.Unfilled(desc.Requirements, candidates),
	})
}

// handleRun composes the described bench offline and executes the
// measurement with simulated drivers, streaming progress to WebSocket
// subscribers. Live hardware runs stay on the CLI; the API never touches
// real instruments.
func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Measurement  string            `json:"measurement"`
		TopologyYAML string            `json:"topology_yaml"`
		Bindings     map[string]string `json:"bindings"`
		Params       map[string]any    `json:"params"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	desc, ok := measurement.Get(req.Measurement)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown measurement %q", req.Measurement))
		return
	}

	nodes, ok := a.validateTopology(w, req.TopologyYAML)
	if !ok {
		return
	}

	bindings := make(map[string]*topology.DeviceNode, len(req.Bindings))
	for attr, path := range req.Bindings {
		node, found := topology.FindByPath(nodes, path)
		if !found {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("binding %q: no device at path %s", attr, path))
			return
		}
		bindings[attr] = node
	}

	bundle, err := compose.New(a.reg, a.log).Compose(r.Context(), desc.Requirements, bindings,
		compose.Options{Offline: true, Params: req.Params})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	defer bundle.Teardown()

	run := runner.New(a.log)
	run.OnPoint = func(index, total int, values []float64) {
		a.hub.Publish(stream.Event{
			Type:        "point",
			Measurement: desc.Name,
			BundleID:    bundle.ID(),
			Index:       index,
			Total:       total,
			Values:      values,
		})
	}

	a.hub.Publish(stream.Event{Type: "run_started", Measurement: desc.Name, BundleID: bundle.ID()})
	rec, err := run.Run(r.Context(), desc, bundle)
	if err != nil {
		a.hub.Publish(stream.Event{
			Type: "run_failed", Measurement: desc.Name,
			BundleID: bundle.ID(), Message: err.Error(),
		})
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	a.hub.Publish(stream.Event{Type: "run_finished", Measurement: desc.Name, BundleID: bundle.ID()})

	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleWizardCreate(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	sess := wizardsession.New(id, a.sessionTTL)
	if err := a.sessions.Set(r.Context(), id, sess, a.sessionTTL); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (a *API) handleWizardGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleWizardUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}

	var state wizardsession.State
	if !decodeJSON(w, r, &state) {
		return
	}
	sess.State = state

	if err := a.sessions.Set(r.Context(), sess.ID, sess, a.sessionTTL); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleWizardDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sessions.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) loadSession(w http.ResponseWriter, r *http.Request) (*wizardsession.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := a.sessions.Get(r.Context(), id)
	switch {
	case err == nil:
		return sess, true
	case err == wizardsession.ErrNotFound, err == wizardsession.ErrExpired:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return nil, false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
