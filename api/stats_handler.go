package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/xraph/odoosync/engine"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/reconcile"
)

// StatsResponse is returned by GET /v1/stats.
type StatsResponse struct {
	Jobs    *job.Stats `json:"jobs"`
	Modules []string   `json:"modules"`
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Store   string `json:"store"`
	Circuit string `json:"circuit,omitempty"`
}

// ReconcileRequest is the body of POST /v1/reconcile. An empty Module
// reconciles every registered entity type.
type ReconcileRequest struct {
	Module     string `json:"module"`
	EntityType string `json:"entity_type"`
	OdooModel  string `json:"odoo_model,omitempty"`
	Fix        bool   `json:"fix"`
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.eng.Stats(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Jobs:    st,
		Modules: a.eng.Registry().Names(),
	})
}

// health is unauthenticated. An open circuit is reported but does not
// fail the check; an unreachable store does.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "ok"}
	status := http.StatusOK

	if err := a.eng.Syncer().Store().Ping(r.Context()); err != nil {
		a.logger.Warn("health check: store unreachable", slog.String("error", err.Error()))
		resp.Status = "degraded"
		resp.Store = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if a.breaker != nil {
		resp.Circuit = string(a.breaker.State(r.Context()))
	}
	writeJSON(w, status, resp)
}

func (a *API) runSync(w http.ResponseWriter, r *http.Request) {
	var opts []engine.RunOption
	if dry := r.URL.Query().Get("dry_run"); dry == "1" || dry == "true" {
		opts = append(opts, engine.DryRun())
	}

	res, err := a.eng.ProcessQueue(r.Context(), opts...)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Module == "" {
		reports, err := a.reconciler.ReconcileAll(r.Context(), req.Fix)
		if err != nil {
			a.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reports)
		return
	}
	if req.EntityType == "" {
		writeError(w, http.StatusBadRequest, "entity_type is required with module")
		return
	}

	rep, err := a.reconciler.Reconcile(r.Context(), reconcile.Request{
		Module:     req.Module,
		EntityType: req.EntityType,
		OdooModel:  req.OdooModel,
		Fix:        req.Fix,
	})
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
