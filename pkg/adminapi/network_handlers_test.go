package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

func TestServer_CloudpipeConfigureProject(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()
	require.NoError(t, env.networks.Upsert(ctx, compute.Network{ID: "net-1", ProjectID: "proj-a", CIDR: "10.0.0.0/24"}))
	require.NoError(t, env.networks.Upsert(ctx, compute.Network{ID: "net-2", ProjectID: "proj-b", CIDR: "10.1.0.0/24"}))

	put := func(id, body string) int {
		return env.doInProject(t, http.MethodPut, "/v2/os-cloudpipe/"+id, adminactions.RoleAdmin, "proj-a", body).Code
	}

	t.Run("accepted", func(t *testing.T) {
		assert.Equal(t, http.StatusAccepted, put("configure-project",
			`{"configure_project": {"vpn_ip": "203.0.113.7", "vpn_port": "1194"}}`))

		nets, err := env.networks.ListByProject(ctx, "proj-a")
		require.NoError(t, err)
		require.Len(t, nets, 1)
		assert.Equal(t, "203.0.113.7", nets[0].VPNPublicAddress)
		assert.Equal(t, 1194, nets[0].VPNPublicPort)

		other, err := env.networks.ListByProject(ctx, "proj-b")
		require.NoError(t, err)
		assert.Empty(t, other[0].VPNPublicAddress)
	})

	t.Run("numeric port", func(t *testing.T) {
		assert.Equal(t, http.StatusAccepted, put("configure-project",
			`{"configure_project": {"vpn_ip": "2001:db8::1", "vpn_port": 443}}`))
	})

	t.Run("unknown id", func(t *testing.T) {
		rr := env.doInProject(t, http.MethodPut, "/v2/os-cloudpipe/configure-other", adminactions.RoleAdmin, "proj-a",
			`{"configure_project": {"vpn_ip": "203.0.113.7", "vpn_port": 1194}}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		aerr := decodeError(t, rr)
		assert.Equal(t, adminactions.KindInvalidRequest, aerr.Kind)
		assert.Equal(t, "Unknown action configure-other", aerr.Message)
	})

	malformed := map[string]string{
		"empty body":        ``,
		"not an object":     `[1]`,
		"missing envelope":  `{"vpn_ip": "203.0.113.7", "vpn_port": 1194}`,
		"null envelope":     `{"configure_project": null}`,
		"missing port":      `{"configure_project": {"vpn_ip": "203.0.113.7"}}`,
		"missing ip":        `{"configure_project": {"vpn_port": 1194}}`,
		"bad ip":            `{"configure_project": {"vpn_ip": "vpn.example", "vpn_port": 1194}}`,
		"port not integer":  `{"configure_project": {"vpn_ip": "203.0.113.7", "vpn_port": "https"}}`,
		"port out of range": `{"configure_project": {"vpn_ip": "203.0.113.7", "vpn_port": 70000}}`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			rr := env.doInProject(t, http.MethodPut, "/v2/os-cloudpipe/configure-project", adminactions.RoleAdmin, "proj-a", body)
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
			assert.Equal(t, adminactions.KindUnprocessable, decodeError(t, rr).Kind)
		})
	}

	t.Run("operator is forbidden", func(t *testing.T) {
		rr := env.doInProject(t, http.MethodPut, "/v2/os-cloudpipe/configure-project", adminactions.RoleOperator, "proj-a",
			`{"configure_project": {"vpn_ip": "203.0.113.7", "vpn_port": 1194}}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("no project", func(t *testing.T) {
		rr := env.do(t, http.MethodPut, "/v2/os-cloudpipe/configure-project", adminactions.RoleAdmin,
			`{"configure_project": {"vpn_ip": "203.0.113.7", "vpn_port": 1194}}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestServer_FloatingIPs(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()
	require.NoError(t, env.ips.Upsert(ctx, compute.FloatingIP{ID: "fip-1", IP: "198.51.100.10", ProjectID: "proj-a",
		InstanceID: "vm-active", FixedIP: "10.0.0.5"}))
	require.NoError(t, env.ips.Upsert(ctx, compute.FloatingIP{ID: "fip-2", IP: "198.51.100.20", ProjectID: "proj-b"}))

	t.Run("index is scoped to the project", func(t *testing.T) {
		rr := env.doInProject(t, http.MethodGet, "/v2/os-floating-ips", adminactions.RoleViewer, "proj-a", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			FloatingIPs []map[string]any `json:"floating_ips"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body.FloatingIPs, 1)
		assert.Equal(t, "fip-1", body.FloatingIPs[0]["id"])
		assert.Equal(t, "198.51.100.10", body.FloatingIPs[0]["ip"])
		assert.Equal(t, "vm-active", body.FloatingIPs[0]["instance_id"])
		assert.Equal(t, "10.0.0.5", body.FloatingIPs[0]["fixed_ip"])
	})

	t.Run("empty project lists nothing", func(t *testing.T) {
		rr := env.doInProject(t, http.MethodGet, "/v2/os-floating-ips", adminactions.RoleViewer, "proj-empty", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"floating_ips": []}`, rr.Body.String())
	})

	t.Run("admin without project sees all", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/v2/os-floating-ips", adminactions.RoleAdmin, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			FloatingIPs []compute.FloatingIP `json:"floating_ips"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Len(t, body.FloatingIPs, 2)
	})

	t.Run("viewer without project is forbidden", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/v2/os-floating-ips", adminactions.RoleViewer, "")
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("show", func(t *testing.T) {
		rr := env.doInProject(t, http.MethodGet, "/v2/os-floating-ips/fip-1", adminactions.RoleViewer, "proj-a", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var body struct {
			FloatingIP compute.FloatingIP `json:"floating_ip"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "198.51.100.10", body.FloatingIP.IP)
	})

	t.Run("show in another project is not found", func(t *testing.T) {
		rr := env.doInProject(t, http.MethodGet, "/v2/os-floating-ips/fip-2", adminactions.RoleViewer, "proj-a", "")
		require.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, adminactions.KindResourceNotFound, decodeError(t, rr).Kind)
	})
}
