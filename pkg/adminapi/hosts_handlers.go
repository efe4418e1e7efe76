package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

type hostsResponse struct {
	Hosts []compute.Host `json:"hosts"`
}

type hostStatusResponse struct {
	Host   string `json:"host"`
	Status string `json:"status"`
}

// listHostsHandler serves GET /v2/os-hosts[?service=compute].
func (s *Server) listHostsHandler(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.hosts.List(r.Context(), r.URL.Query().Get("service"))
	if err != nil {
		s.logger.Error("failed to list hosts", "error", err)
		writeError(w, http.StatusInternalServerError, adminactions.KindUnprocessable, "Unable to list hosts")
		return
	}
	if hosts == nil {
		hosts = []compute.Host{}
	}
	writeJSON(w, http.StatusOK, hostsResponse{Hosts: hosts})
}

// updateHostHandler serves PUT /v2/os-hosts/{host} with {"status": "enable"|"disable"}.
// Keys and values are matched case-insensitively.
func (s *Server) updateHostHandler(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")

	body, err := readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	var settings map[string]string
	if err := json.Unmarshal(body, &settings); err != nil || len(settings) == 0 {
		writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest, "Malformed host update entity")
		return
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var enabled *bool
	for _, rawKey := range keys {
		rawVal := settings[rawKey]
		if strings.ToLower(strings.TrimSpace(rawKey)) != "status" {
			writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest, "Invalid update setting: '%s'", rawKey)
			return
		}
		switch strings.ToLower(strings.TrimSpace(rawVal)) {
		case "enable":
			v := true
			enabled = &v
		case "disable":
			v := false
			enabled = &v
		default:
			writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest, "Invalid status: '%s'", rawVal)
			return
		}
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := s.hosts.SetEnabled(r.Context(), host, *enabled); err != nil {
		if errors.Is(err, compute.ErrHostNotFound) {
			writeError(w, http.StatusNotFound, adminactions.KindResourceNotFound, "Host %s could not be found.", host)
			return
		}
		s.logger.Error("failed to update host", "host", host, "error", err)
		writeError(w, http.StatusInternalServerError, adminactions.KindUnprocessable, "Unable to update host %s", host)
		return
	}

	status := "disabled"
	if *enabled {
		status = "enabled"
	}
	s.logger.Info("host status changed", "host", host, "status", status, "actor", principal.User)
	writeJSON(w, http.StatusOK, hostStatusResponse{Host: host, Status: status})
}
