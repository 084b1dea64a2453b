package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
)

// EnqueueRequest is the body of POST /v1/jobs.
type EnqueueRequest struct {
	Module      string         `json:"module"`
	Direction   job.Direction  `json:"direction"`
	EntityType  string         `json:"entity_type"`
	Action      job.Action     `json:"action"`
	WPID        int64          `json:"wp_id"`
	OdooID      int64          `json:"odoo_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
}

func (r EnqueueRequest) job() *job.Job {
	j := &job.Job{
		Module:      r.Module,
		Direction:   r.Direction,
		EntityType:  r.EntityType,
		Action:      r.Action,
		WPID:        r.WPID,
		OdooID:      r.OdooID,
		Payload:     r.Payload,
		Priority:    r.Priority,
		MaxAttempts: r.MaxAttempts,
	}
	if r.ScheduledAt != nil {
		j.ScheduledAt = r.ScheduledAt.UTC()
	}
	return j
}

// EnqueueResponse is returned by POST /v1/jobs. ID is zero when the push
// was suppressed.
type EnqueueResponse struct {
	ID id.JobID `json:"id"`
}

// CountResponse reports how many jobs a bulk operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

func (a *API) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	jobID, err := a.eng.Enqueue(r.Context(), req.job())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, EnqueueResponse{ID: jobID})
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := job.ListOpts{Module: q.Get("module")}

	if s := q.Get("status"); s != "" {
		st := job.Status(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(s))
			return
		}
		opts.Status = st
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	opts.Limit = defaultLimit(limit)
	opts.Offset = offset

	jobs, err := a.eng.List(r.Context(), opts)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(mux.Vars(r)["jobId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID: "+err.Error())
		return
	}

	j, err := a.eng.Job(r.Context(), jobID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(mux.Vars(r)["jobId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID: "+err.Error())
		return
	}

	ok, err := a.eng.Cancel(r.Context(), jobID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if !ok {
		// Either unknown or already picked up; tell them apart for the caller.
		if _, err := a.eng.Job(r.Context(), jobID); err != nil {
			a.writeStoreError(w, err)
			return
		}
		writeError(w, http.StatusConflict, "only pending jobs can be cancelled")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) retryJobs(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.Retry(r.Context())
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (a *API) cleanupJobs(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"))
	if err != nil || days < 0 {
		writeError(w, http.StatusBadRequest, "invalid days")
		return
	}

	n, err := a.eng.Cleanup(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

const (
	listDefaultLimit = 50
	listMaxLimit     = 500
)

func defaultLimit(limit int) int {
	if limit <= 0 {
		return listDefaultLimit
	}
	if limit > listMaxLimit {
		return listMaxLimit
	}
	return limit
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// writeStoreError maps odoosync sentinel errors to HTTP statuses.
func (a *API) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case isNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, odoosync.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, odoosync.ErrLockTimeout):
		writeError(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error("api request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, odoosync.ErrJobNotFound) ||
		errors.Is(err, odoosync.ErrMappingNotFound) ||
		errors.Is(err, odoosync.ErrAdapterNotFound)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
