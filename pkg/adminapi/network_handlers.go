package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// configureProjectID is the only os-cloudpipe resource that accepts updates.
const configureProjectID = "configure-project"

var validate = validator.New(validator.WithRequiredStructEnabled())

// NetworkService serves the os-cloudpipe update endpoint.
type NetworkService interface {
	ConfigureVPN(ctx context.Context, projectID, address string, port int) error
}

// FloatingIPReader serves the os-floating-ips endpoints.
type FloatingIPReader interface {
	List(ctx context.Context, projectID string) ([]compute.FloatingIP, error)
	Get(ctx context.Context, projectID, id string) (*compute.FloatingIP, error)
}

type vpnSettings struct {
	Address string `validate:"required,ip"`
	Port    int    `validate:"min=1,max=65535"`
}

type floatingIPsResponse struct {
	FloatingIPs []compute.FloatingIP `json:"floating_ips"`
}

type floatingIPResponse struct {
	FloatingIP *compute.FloatingIP `json:"floating_ip"`
}

// updateCloudpipeHandler serves PUT /v2/os-cloudpipe/configure-project with
// {"configure_project": {"vpn_ip": ..., "vpn_port": ...}}. It repoints the
// VPN endpoint of every network in the caller's project.
func (s *Server) updateCloudpipeHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id != configureProjectID {
		writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest, "Unknown action %s", id)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	if principal.Project == "" {
		writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest, "Request carries no project")
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	settings, err := parseVPNSettings(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, adminactions.KindUnprocessable, "%s", err.Error())
		return
	}

	if err := s.networks.ConfigureVPN(r.Context(), principal.Project, settings.Address, settings.Port); err != nil {
		s.logger.Error("failed to configure cloudpipe", "project", principal.Project, "error", err)
		writeError(w, http.StatusInternalServerError, adminactions.KindUnprocessable,
			"Unable to configure cloudpipe for project %s", principal.Project)
		return
	}
	s.logger.Info("cloudpipe configured", "project", principal.Project,
		"vpnIP", settings.Address, "vpnPort", settings.Port, "actor", principal.User)
	w.WriteHeader(http.StatusAccepted)
}

func parseVPNSettings(body json.RawMessage) (*vpnSettings, error) {
	malformed := errors.New("malformed configure_project entity")
	var envelope map[string]json.RawMessage
	if len(body) == 0 || json.Unmarshal(body, &envelope) != nil {
		return nil, malformed
	}
	var params map[string]json.RawMessage
	if raw, ok := envelope["configure_project"]; !ok || json.Unmarshal(raw, &params) != nil || params == nil {
		return nil, malformed
	}
	rawIP, okIP := params["vpn_ip"]
	rawPort, okPort := params["vpn_port"]
	if !okIP || !okPort {
		return nil, malformed
	}

	var settings vpnSettings
	if json.Unmarshal(rawIP, &settings.Address) != nil {
		return nil, errors.New("vpn_ip must be a string")
	}
	port, err := parsePort(rawPort)
	if err != nil {
		return nil, errors.New("vpn_port must be an integer")
	}
	settings.Port = port

	if err := validate.Struct(&settings); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 && fieldErrs[0].Field() == "Port" {
			return nil, fmt.Errorf("vpn_port %d is out of range", port)
		}
		return nil, fmt.Errorf("vpn_ip '%s' is not an IP address", settings.Address)
	}
	return &settings, nil
}

// parsePort accepts a JSON integer or a string holding one.
func parsePort(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case json.Number:
		return strconv.Atoi(t.String())
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("port has type %T", v)
	}
}

// floatingIPScope returns the project whose floating IPs the caller may
// read. Admins without a project see every allocation.
func floatingIPScope(p adminactions.Principal) (string, bool) {
	if p.Project != "" {
		return p.Project, true
	}
	return "", p.Role.Satisfies(adminactions.RoleAdmin)
}

// listFloatingIPsHandler serves GET /v2/os-floating-ips.
func (s *Server) listFloatingIPsHandler(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	project, ok := floatingIPScope(principal)
	if !ok {
		writeError(w, http.StatusForbidden, adminactions.KindForbidden, "Request carries no project")
		return
	}
	ips, err := s.floatingIPs.List(r.Context(), project)
	if err != nil {
		s.logger.Error("failed to list floating ips", "project", project, "error", err)
		writeError(w, http.StatusInternalServerError, adminactions.KindUnprocessable, "Unable to list floating IPs")
		return
	}
	if ips == nil {
		ips = []compute.FloatingIP{}
	}
	writeJSON(w, http.StatusOK, floatingIPsResponse{FloatingIPs: ips})
}

// getFloatingIPHandler serves GET /v2/os-floating-ips/{id}.
func (s *Server) getFloatingIPHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal, _ := PrincipalFromContext(r.Context())
	project, ok := floatingIPScope(principal)
	if !ok {
		writeError(w, http.StatusForbidden, adminactions.KindForbidden, "Request carries no project")
		return
	}
	ip, err := s.floatingIPs.Get(r.Context(), project, id)
	if err != nil {
		if errors.Is(err, compute.ErrFloatingIPNotFound) {
			writeError(w, http.StatusNotFound, adminactions.KindResourceNotFound, "Floating ip %s could not be found.", id)
			return
		}
		s.logger.Error("failed to get floating ip", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, adminactions.KindUnprocessable, "Unable to get floating IP %s", id)
		return
	}
	writeJSON(w, http.StatusOK, floatingIPResponse{FloatingIP: ip})
}
