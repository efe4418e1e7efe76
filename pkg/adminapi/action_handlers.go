package adminapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
)

// RequestIDHeader carries the gateway request ID on every action response.
const RequestIDHeader = "X-Compute-Request-Id"

// maxBodyBytes bounds action request bodies.
const maxBodyBytes = 1 << 20

// actionHandler serves POST /v2/servers/{serverID}/{action}. The body is the
// action's parameter object.
func (s *Server) actionHandler(name adminactions.ActionName) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeBodyError(w, err)
			return
		}
		s.dispatch(w, r, name, body)
	}
}

// wrappedActionHandler serves POST /v2/servers/{serverID}/action, whose body
// names the action as its single key: {"createBackup": {...}}.
func (s *Server) wrappedActionHandler(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil || len(wrapper) != 1 {
		writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest,
			"Malformed request body: expected a single action key")
		return
	}
	for name, params := range wrapper {
		s.dispatch(w, r, adminactions.ActionName(name), params)
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, name adminactions.ActionName, body json.RawMessage) {
	principal, _ := PrincipalFromContext(r.Context())
	requestID := "req-" + uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)

	result, aerr := s.gateway.Handle(r.Context(), adminactions.Request{
		RequestID:  requestID,
		Principal:  principal,
		Action:     name,
		ResourceID: chi.URLParam(r, "serverID"),
		Body:       body,
	})
	if aerr != nil {
		writeActionError(w, aerr)
		return
	}
	if result.Location != "" {
		w.Header().Set("Location", result.Location)
	}
	writeJSON(w, result.HTTPStatus(), result)
}

// readBody reads at most maxBodyBytes. An empty or whitespace-only body is
// returned as nil.
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, adminactions.KindInvalidRequest,
			"Request body exceeds %d bytes", tooLarge.Limit)
		return
	}
	writeError(w, http.StatusBadRequest, adminactions.KindInvalidRequest, "Unable to read request body")
}
