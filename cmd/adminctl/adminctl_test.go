package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// execute runs the root command against srv and returns its output.
func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--server", srv.URL))
	t.Cleanup(func() {
		outputFmt, userName, roleName, projectID, token = "table", "", "", "", ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeResult(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
		}
	}
}

func TestRunActionHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/servers/vm-1/action" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-Remote-User") != "alice" || r.Header.Get("X-User-Role") != "operator" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if string(body["pause"]) != "null" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeResult(w, http.StatusAccepted, actionResult{
			RequestID: "req-1", Action: "pause", ResourceID: "vm-1", Status: "accepted",
		})
	}))
	defer srv.Close()

	client := &gatewayClient{baseURL: srv.URL, user: "alice", role: "operator", http: srv.Client()}
	res, err := client.runAction("vm-1", "pause", nil)
	if err != nil {
		t.Fatalf("runAction failed: %v", err)
	}
	if res.Status != "accepted" || res.RequestID != "req-1" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestClientErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusConflict, map[string]any{
			"error": map[string]string{
				"kind":    "StateConflict",
				"message": "Cannot 'pause' instance vm-1 while it is in vm_state paused",
			},
			"code": http.StatusConflict,
		})
	}))
	defer srv.Close()

	client := &gatewayClient{baseURL: srv.URL, http: srv.Client()}
	_, err := client.runAction("vm-1", "pause", nil)

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected apiError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Kind != "StateConflict" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "vm_state paused") {
		t.Errorf("error should carry the server message, got: %v", err)
	}
}

func TestClientPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error\n"))
	}))
	defer srv.Close()

	client := &gatewayClient{baseURL: srv.URL, http: srv.Client()}
	var v map[string]any
	err := client.getJSON("/healthz", &v)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if err.Error() != "server returned 500: internal error" {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestClientBearerToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeResult(w, http.StatusOK, map[string]string{"status": "alive"})
	}))
	defer srv.Close()

	client := &gatewayClient{baseURL: srv.URL, token: "abc.def.ghi", http: srv.Client()}
	var v map[string]any
	if err := client.getJSON("/healthz", &v); err != nil {
		t.Fatalf("getJSON failed: %v", err)
	}
	if auth != "Bearer abc.def.ghi" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestResolvedTokenFromEnv(t *testing.T) {
	t.Setenv("ADMINCTL_TOKEN", "from-env")
	token = ""
	if got := resolvedToken(); got != "from-env" {
		t.Errorf("resolvedToken() = %q", got)
	}
	token = "from-flag"
	defer func() { token = "" }()
	if got := resolvedToken(); got != "from-flag" {
		t.Errorf("resolvedToken() = %q", got)
	}
}

func TestBackupCommand(t *testing.T) {
	var params map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		params = body["createBackup"]
		w.Header().Set("Location", "http://gateway.test/v2/images/img-1")
		writeResult(w, http.StatusAccepted, actionResult{
			RequestID: "req-2", Action: "createBackup", ResourceID: "vm-1", Status: "accepted",
			Location: "http://gateway.test/v2/images/img-1",
		})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "backup", "vm-1", "--name", "nightly", "--type", "weekly", "--rotation", "3",
		"--meta", "env=prod", "-o", "json")
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if params["name"] != "nightly" || params["backup_type"] != "weekly" || params["rotation"] != float64(3) {
		t.Errorf("unexpected params: %v", params)
	}
	md, _ := params["metadata"].(map[string]any)
	if md["env"] != "prod" {
		t.Errorf("metadata = %v", params["metadata"])
	}

	var res actionResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Location != "http://gateway.test/v2/images/img-1" {
		t.Errorf("Location = %q", res.Location)
	}
}

func TestLiveMigrateCommand_SchedulerPicksHost(t *testing.T) {
	var params map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		params = body["os-migrateLive"]
		writeResult(w, http.StatusAccepted, actionResult{
			RequestID: "req-3", Action: "os-migrateLive", ResourceID: "vm-1", Status: "accepted",
		})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "live-migrate", "vm-1", "--block-migration")
	if err != nil {
		t.Fatalf("live-migrate failed: %v", err)
	}
	host, present := params["host"]
	if !present || host != nil {
		t.Errorf("host should be sent as null, got %v (present=%v)", host, present)
	}
	if params["block_migration"] != true || params["disk_over_commit"] != false {
		t.Errorf("unexpected params: %v", params)
	}
	for _, want := range []string{"FIELD", "os-migrateLive", "vm-1", "accepted", "req-3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Location") {
		t.Errorf("empty location should be omitted:\n%s", out)
	}
}

func TestActionCommand_ReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusForbidden, map[string]any{
			"error": map[string]string{"kind": "Forbidden", "message": "Policy doesn't allow this action to be performed."},
			"code":  http.StatusForbidden,
		})
	}))
	defer srv.Close()

	_, err := execute(t, srv, "reset-state", "vm-1", "--state", "error", "--role", "viewer")
	if err == nil || !strings.Contains(err.Error(), "403 (Forbidden)") {
		t.Errorf("expected forbidden error, got %v", err)
	}
}

func TestHistoryCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/servers/vm-1/os-instance-actions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("pageSize") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeResult(w, http.StatusOK, instanceActionsResponse{
			InstanceActions: []instanceAction{{
				RequestID: "req-9", InstanceID: "vm-1", Action: "pause", UserID: "alice",
				Outcome: "accepted", StatusCode: 202, StartTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			}},
			NextPageToken: "tok-1",
		})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "history", "vm-1", "--page-size", "1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	for _, want := range []string{"ACTION", "pause", "alice", "req-9", "--page-token tok-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHostsCommands(t *testing.T) {
	var update map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/os-hosts":
			writeResult(w, http.StatusOK, hostsResponse{Hosts: []hostInfo{
				{Name: "node-a", Service: "compute", Enabled: true, HypervisorType: "kvm", HypervisorVersion: 6002000},
				{Name: "node-b", Service: "compute", Enabled: false, HypervisorType: "kvm", HypervisorVersion: 6002000},
			}})
		case r.Method == http.MethodPut && r.URL.Path == "/v2/os-hosts/node-b":
			json.NewDecoder(r.Body).Decode(&update)
			writeResult(w, http.StatusOK, hostUpdateResponse{Host: "node-b", Status: "enabled"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	out, err := execute(t, srv, "hosts", "list")
	if err != nil {
		t.Fatalf("hosts list failed: %v", err)
	}
	if !strings.Contains(out, "node-b") || !strings.Contains(out, "disabled") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = execute(t, srv, "hosts", "enable", "node-b", "--role", "admin")
	if err != nil {
		t.Fatalf("hosts enable failed: %v", err)
	}
	if update["status"] != "enable" {
		t.Errorf("update body = %v", update)
	}
	if !strings.Contains(out, "node-b") || !strings.Contains(out, "enabled") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHealthCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			writeResult(w, http.StatusOK, map[string]string{"status": "alive", "uptime": "5m0s"})
		case "/readyz":
			writeResult(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": "database is locked"})
		}
	}))
	defer srv.Close()

	out, err := execute(t, srv, "health", "-o", "yaml")
	if err == nil || !strings.Contains(err.Error(), "not ready") {
		t.Errorf("expected not-ready error, got %v", err)
	}
	for _, want := range []string{"liveness: alive", "readiness: not_ready", "reason: database is locked"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHealthCommand_Ready(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			writeResult(w, http.StatusOK, map[string]string{"status": "alive", "uptime": "1h0m0s"})
		case "/readyz":
			writeResult(w, http.StatusOK, map[string]string{"status": "ready"})
		}
	}))
	defer srv.Close()

	out, err := execute(t, srv, "health")
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	for _, want := range []string{"Liveness", "alive", "1h0m0s", "ready"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Reason") {
		t.Errorf("empty reason should be omitted:\n%s", out)
	}
}

func TestPrintError(t *testing.T) {
	gatewayErr := fmt.Errorf("action %q failed: %w", "pause", &apiError{
		Status: http.StatusConflict, Kind: "StateConflict", Message: "Cannot 'pause' instance vm-1 while it is in vm_state paused",
	})
	t.Cleanup(func() { outputFmt = "table" })

	t.Run("table", func(t *testing.T) {
		outputFmt = "table"
		var buf bytes.Buffer
		printError(&buf, gatewayErr)
		out := buf.String()
		if !strings.Contains(out, "Error: action \"pause\" failed: server returned 409 (StateConflict)") {
			t.Errorf("unexpected output:\n%s", out)
		}
		if !strings.Contains(out, "Hint: check the server's current state") {
			t.Errorf("missing hint:\n%s", out)
		}
	})

	t.Run("json keeps the envelope", func(t *testing.T) {
		outputFmt = "json"
		var buf bytes.Buffer
		printError(&buf, gatewayErr)
		var env errorEnvelope
		if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
		}
		if env.Code != http.StatusConflict || env.Error.Kind != "StateConflict" {
			t.Errorf("unexpected envelope: %+v", env)
		}
	})

	t.Run("local error", func(t *testing.T) {
		outputFmt = "json"
		var buf bytes.Buffer
		printError(&buf, errors.New("request failed: connection refused"))
		if buf.String() != "Error: request failed: connection refused\n" {
			t.Errorf("unexpected output: %q", buf.String())
		}
	})
}

func TestUnsupportedOutputFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusAccepted, actionResult{RequestID: "req-4", Action: "pause", ResourceID: "vm-1", Status: "accepted"})
	}))
	defer srv.Close()

	_, err := execute(t, srv, "pause", "vm-1", "-o", "xml")
	if err == nil || !strings.Contains(err.Error(), "unsupported output format: xml") {
		t.Errorf("expected format error, got %v", err)
	}
}

func TestCloudpipeCommand(t *testing.T) {
	var (
		project string
		body    map[string]map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v2/os-cloudpipe/configure-project" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		project = r.Header.Get("X-Project-Id")
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	out, err := execute(t, srv, "cloudpipe", "configure", "--vpn-ip", "203.0.113.7", "--vpn-port", "1195",
		"--project", "proj-a", "--role", "admin")
	if err != nil {
		t.Fatalf("cloudpipe configure failed: %v", err)
	}
	if project != "proj-a" {
		t.Errorf("X-Project-Id = %q", project)
	}
	params := body["configure_project"]
	if params["vpn_ip"] != "203.0.113.7" || params["vpn_port"] != float64(1195) {
		t.Errorf("unexpected body: %v", body)
	}
	if !strings.Contains(out, "203.0.113.7") || !strings.Contains(out, "accepted") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestFloatingIPsCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Project-Id") != "proj-a" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fip := floatingIP{ID: "fip-1", IP: "198.51.100.10", InstanceID: "vm-1", FixedIP: "10.0.0.5"}
		switch r.URL.Path {
		case "/v2/os-floating-ips":
			writeResult(w, http.StatusOK, floatingIPsResponse{FloatingIPs: []floatingIP{fip}})
		case "/v2/os-floating-ips/fip-1":
			writeResult(w, http.StatusOK, floatingIPResponse{FloatingIP: fip})
		default:
			writeResult(w, http.StatusNotFound, map[string]any{
				"error": map[string]string{"kind": "ResourceNotFound", "message": "Floating ip fip-9 could not be found."},
				"code":  http.StatusNotFound,
			})
		}
	}))
	defer srv.Close()

	out, err := execute(t, srv, "floating-ips", "list", "--project", "proj-a")
	if err != nil {
		t.Fatalf("floating-ips list failed: %v", err)
	}
	for _, want := range []string{"FIXED IP", "198.51.100.10", "vm-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, srv, "floating-ips", "show", "fip-1", "--project", "proj-a", "-o", "json")
	if err != nil {
		t.Fatalf("floating-ips show failed: %v", err)
	}
	var resp floatingIPResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil || resp.FloatingIP.FixedIP != "10.0.0.5" {
		t.Errorf("unexpected output (%v):\n%s", err, out)
	}

	_, err = execute(t, srv, "floating-ips", "show", "fip-9", "--project", "proj-a")
	if err == nil || !strings.Contains(err.Error(), "404 (ResourceNotFound)") {
		t.Errorf("expected not found, got %v", err)
	}
}
