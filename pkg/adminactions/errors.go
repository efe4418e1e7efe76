package adminactions

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// ErrUnknownAction is returned by Registry.Lookup for unregistered names.
var ErrUnknownAction = errors.New("unknown action")

// ErrForbidden is returned by an Authorizer that denies a request.
var ErrForbidden = errors.New("forbidden")

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindResourceNotFound      ErrorKind = "ResourceNotFound"
	KindStateConflict         ErrorKind = "StateConflict"
	KindUnsupported           ErrorKind = "Unsupported"
	KindUnavailableDependency ErrorKind = "UnavailableDependency"
	KindUnprocessable         ErrorKind = "Unprocessable"

	KindInvalidRequest ErrorKind = "InvalidRequest"
	KindQuotaExceeded  ErrorKind = "QuotaExceeded"
	KindForbidden      ErrorKind = "Forbidden"
	KindUnknownAction  ErrorKind = "UnknownAction"
)

var kindStatus = map[ErrorKind]int{
	KindResourceNotFound:      http.StatusNotFound,
	KindStateConflict:         http.StatusConflict,
	KindUnsupported:           http.StatusNotImplemented,
	KindUnavailableDependency: http.StatusBadRequest,
	KindUnprocessable:         http.StatusUnprocessableEntity,
	KindInvalidRequest:        http.StatusBadRequest,
	KindQuotaExceeded:         http.StatusRequestEntityTooLarge,
	KindForbidden:             http.StatusForbidden,
	KindUnknownAction:         http.StatusBadRequest,
}

// HTTPStatus returns the outward status code for the kind.
func (k ErrorKind) HTTPStatus() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ActionError is the sanitized, classified failure returned to callers.
// The underlying cause is kept for logging but never serialized.
type ActionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Reason  string    `json:"reason,omitempty"`

	cause error
}

func (e *ActionError) Error() string {
	return e.Message
}

func (e *ActionError) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the outward status code for the error.
func (e *ActionError) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// ValidationError reports a malformed or missing parameter.
type ValidationError struct {
	Action  ActionName
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StateConflictError is returned by the guard when the resource's vm_state is
// outside the action's compatible set.
type StateConflictError struct {
	Action     ActionName
	ResourceID string
	Attr       string
	State      string
}

func (e *StateConflictError) Error() string {
	attr := e.Attr
	if attr == "" {
		attr = "vm_state"
	}
	return fmt.Sprintf("Cannot '%s' instance %s while it is in %s %s", e.Action, e.ResourceID, attr, e.State)
}

// stateConflictFrom converts an orchestrator state error into the guard's
// error type so both are reported the same way.
func stateConflictFrom(action ActionName, resourceID string, err *compute.InvalidStateError) *StateConflictError {
	id := err.InstanceID
	if id == "" {
		id = resourceID
	}
	return &StateConflictError{Action: action, ResourceID: id, Attr: err.Attr, State: err.State}
}
