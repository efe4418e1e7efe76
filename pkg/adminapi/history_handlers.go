package adminapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

type instanceActionsResponse struct {
	InstanceActions []adminactions.InstanceActionRecord `json:"instanceActions"`
	NextPageToken   string                              `json:"next_page_token,omitempty"`
}

type instanceActionResponse struct {
	InstanceAction *adminactions.InstanceActionRecord `json:"instanceAction"`
}

// listInstanceActionsHandler serves GET /v2/servers/{serverID}/os-instance-actions.
func (s *Server) listInstanceActionsHandler(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")
	if !s.checkInstance(w, r, serverID) {
		return
	}

	pageSize := 0
	if v := r.URL.Query().Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest, "Invalid pageSize: '%s'", v)
			return
		}
		pageSize = n
	}

	records, next, err := s.history.ListByInstance(r.Context(), serverID, pageSize, r.URL.Query().Get("nextPageToken"))
	if err != nil {
		s.logger.Error("failed to list instance actions", "resource", serverID, "error", err)
		writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest, "Unable to list actions for instance %s", serverID)
		return
	}
	if records == nil {
		records = []adminactions.InstanceActionRecord{}
	}
	writeJSON(w, http.StatusOK, instanceActionsResponse{InstanceActions: records, NextPageToken: next})
}

// getInstanceActionHandler serves GET /v2/servers/{serverID}/os-instance-actions/{requestID}.
func (s *Server) getInstanceActionHandler(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")
	requestID := chi.URLParam(r, "requestID")
	if !s.checkInstance(w, r, serverID) {
		return
	}

	rec, err := s.history.Get(r.Context(), serverID, requestID)
	if err != nil {
		s.logger.Error("failed to get instance action", "resource", serverID, "requestID", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, adminactions.KindUnprocessable, "Unable to read action %s", requestID)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, adminactions.KindResourceNotFound,
			"Action %s on instance %s could not be found.", requestID, serverID)
		return
	}
	writeJSON(w, http.StatusOK, instanceActionResponse{InstanceAction: rec})
}

// checkInstance answers 404 for unknown servers. It reports whether the
// handler should continue.
func (s *Server) checkInstance(w http.ResponseWriter, r *http.Request, serverID string) bool {
	if s.instances == nil {
		return true
	}
	if _, err := s.instances.Get(r.Context(), serverID); err != nil {
		if errors.Is(err, compute.ErrInstanceNotFound) {
			writeError(w, http.StatusNotFound, adminactions.KindResourceNotFound, "Instance %s could not be found.", serverID)
			return false
		}
		s.logger.Error("failed to look up instance", "resource", serverID, "error", err)
		writeError(w, http.StatusInternalServerError, adminactions.KindUnprocessable, "Unable to look up instance %s", serverID)
		return false
	}
	return true
}
