package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type gatewayClient struct {
	baseURL string
	user    string
	role    string
	project string
	token   string
	http    *http.Client
}

func newClient() *gatewayClient {
	return &gatewayClient{
		baseURL: serverURL,
		user:    userName,
		role:    roleName,
		project: projectID,
		token:   resolvedToken(),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// apiError is the error envelope returned by the gateway.
type apiError struct {
	Status  int
	Kind    string
	Message string
	Reason  string
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.Status)
	if e.Kind != "" {
		msg += " (" + e.Kind + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Reason != "" {
		msg += " [" + e.Reason + "]"
	}
	return msg
}

// decodeError turns a non-2xx response into an apiError. Bodies that are not
// the gateway envelope are reported verbatim.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Error *struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return &apiError{
			Status:  resp.StatusCode,
			Kind:    envelope.Error.Kind,
			Message: envelope.Error.Message,
			Reason:  envelope.Error.Reason,
		}
	}
	return &apiError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
}

// do sends a request with an optional JSON body, decodes a 2xx response into
// v and returns the response headers.
func (c *gatewayClient) do(method, path string, body any, v any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setIdentity(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, decodeError(resp)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return resp.Header, fmt.Errorf("decode error: %w", err)
		}
	}
	return resp.Header, nil
}

func (c *gatewayClient) setIdentity(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.user != "" {
		req.Header.Set("X-Remote-User", c.user)
	}
	if c.role != "" {
		req.Header.Set("X-User-Role", c.role)
	}
	if c.project != "" {
		req.Header.Set("X-Project-Id", c.project)
	}
}

// getStatus performs a GET request and decodes the body whatever the status
// code, for endpoints such as /readyz that report failure in a 503 body.
func (c *gatewayClient) getStatus(path string, v any) (int, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("request creation failed: %w", err)
	}
	c.setIdentity(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode error: %w", err)
	}
	return resp.StatusCode, nil
}

// getJSON performs a GET request and decodes the response.
func (c *gatewayClient) getJSON(path string, v any) error {
	_, err := c.do(http.MethodGet, path, nil, v)
	return err
}

// putJSON performs a PUT request with a JSON body and decodes the response.
func (c *gatewayClient) putJSON(path string, body any, v any) error {
	_, err := c.do(http.MethodPut, path, body, v)
	return err
}

// runAction posts {"<action>": params} to the wrapped action endpoint.
func (c *gatewayClient) runAction(serverID, action string, params any) (*actionResult, error) {
	var result actionResult
	_, err := c.do(http.MethodPost, serverPath(serverID)+"/action", map[string]any{action: params}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func serverPath(serverID string) string {
	return "/v2/servers/" + serverID
}
