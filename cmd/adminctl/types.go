package main

import "time"

// actionResult is the success body of an action request.
type actionResult struct {
	RequestID   string         `json:"request_id"`
	Action      string         `json:"action"`
	ResourceID  string         `json:"resource_id"`
	Status      string         `json:"status"`
	Location    string         `json:"location,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}

// instanceAction is one entry of an instance's action history.
type instanceAction struct {
	RequestID  string         `json:"request_id"`
	InstanceID string         `json:"instance_uuid"`
	Action     string         `json:"action"`
	UserID     string         `json:"user_id"`
	Role       string         `json:"role,omitempty"`
	Outcome    string         `json:"outcome"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Message    string         `json:"message,omitempty"`
	StatusCode int            `json:"status_code"`
	PriorState string         `json:"prior_state,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	StartTime  time.Time      `json:"start_time"`
	FinishTime time.Time      `json:"finish_time"`
}

type instanceActionsResponse struct {
	InstanceActions []instanceAction `json:"instanceActions"`
	NextPageToken   string           `json:"next_page_token,omitempty"`
}

type instanceActionResponse struct {
	InstanceAction instanceAction `json:"instanceAction"`
}

type hostInfo struct {
	Name              string `json:"host_name"`
	Service           string `json:"service"`
	Zone              string `json:"zone,omitempty"`
	Enabled           bool   `json:"enabled"`
	HypervisorType    string `json:"hypervisor_type"`
	HypervisorVersion int    `json:"hypervisor_version"`
}

type hostsResponse struct {
	Hosts []hostInfo `json:"hosts"`
}

type hostUpdateResponse struct {
	Host   string `json:"host"`
	Status string `json:"status"`
}

// gatewayHealth combines /healthz and /readyz.
type gatewayHealth struct {
	Liveness  string `json:"liveness"`
	Uptime    string `json:"uptime,omitempty"`
	Readiness string `json:"readiness"`
	Reason    string `json:"reason,omitempty"`
}

type floatingIP struct {
	ID         string `json:"id"`
	IP         string `json:"ip"`
	Pool       string `json:"pool,omitempty"`
	InstanceID string `json:"instance_id"`
	FixedIP    string `json:"fixed_ip"`
}

type floatingIPsResponse struct {
	FloatingIPs []floatingIP `json:"floating_ips"`
}

type floatingIPResponse struct {
	FloatingIP floatingIP `json:"floating_ip"`
}
