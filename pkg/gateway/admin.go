package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aegislabs/aegis-gateway/pkg/domain"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// policyUpdateRequest is the PUT /api/policies/{id} body. Threshold and
// enabled are always set together.
type policyUpdateRequest struct {
	Threshold *float64 `json:"threshold"`
	Enabled   *bool    `json:"enabled"`
}

// HandleListPolicies serves GET /api/policies.
func (c *Controller) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := c.policies.List(r.Context())
	if err != nil {
		c.logger.Error("failed to list policies", "error", err)
		c.writeError(w, http.StatusInternalServerError, "POLICY_LOAD_FAILED", "could not load policies")
		return
	}
	if policies == nil {
		policies = []domain.Policy{}
	}
	writeJSON(w, http.StatusOK, policies)
}

// HandleUpdatePolicy serves PUT /api/policies/{id}.
func (c *Controller) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "policy id must be an integer")
		return
	}

	var req policyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is not valid JSON")
		return
	}
	if req.Threshold == nil || req.Enabled == nil {
		c.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "threshold and enabled are required")
		return
	}
	if *req.Threshold < 0 || *req.Threshold > 1 {
		c.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "threshold must be within [0,1]")
		return
	}

	updated, err := c.policies.Update(r.Context(), id, *req.Threshold, *req.Enabled)
	if err != nil {
		if errors.Is(err, domain.ErrPolicyNotFound) {
			c.writeError(w, http.StatusNotFound, "POLICY_NOT_FOUND", "policy not found")
			return
		}
		c.logger.Error("failed to update policy", "error", err, "policy_id", id)
		c.writeError(w, http.StatusInternalServerError, "POLICY_UPDATE_FAILED", "could not update policy")
		return
	}

	c.logger.Info("policy updated",
		"policy_id", updated.ID,
		"category", updated.Category,
		"threshold", updated.Threshold,
		"enabled", updated.Enabled,
	)
	writeJSON(w, http.StatusOK, updated)
}

// HandleListLogs serves GET /api/logs?limit=N, most recent first.
func (c *Controller) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxLogLimit)
	}

	records, err := c.auditStore.ListRecent(r.Context(), limit)
	if err != nil {
		c.logger.Error("failed to list audit records", "error", err)
		c.writeError(w, http.StatusInternalServerError, "AUDIT_LOAD_FAILED", "could not load audit records")
		return
	}
	if records == nil {
		records = []domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleStats serves GET /api/stats.
func (c *Controller) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.auditStore.Stats(r.Context())
	if err != nil {
		c.logger.Error("failed to compute stats", "error", err)
		c.writeError(w, http.StatusInternalServerError, "AUDIT_LOAD_FAILED", "could not compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
