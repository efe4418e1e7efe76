package adminactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// Classify maps an error raised while handling cmd to an ActionError. It is
// a pure function of its arguments.
//
// Request-level failures (unknown action, authorization, validation, quota)
// are recognized first. Delegation failures then follow a fixed precedence:
// not found, state conflict, unsupported, unavailable dependency, and
// finally unprocessable. desc may be nil when the action is unknown.
func Classify(desc *Descriptor, cmd *Command, err error) *ActionError {
	if err == nil {
		return nil
	}
	var already *ActionError
	if errors.As(err, &already) {
		return already
	}

	action, resourceID := commandIdentity(desc, cmd)

	if ae := classifyRequest(err); ae != nil {
		return ae
	}

	// 1. Resource not found.
	if errors.Is(err, compute.ErrInstanceNotFound) {
		return &ActionError{
			Kind:    KindResourceNotFound,
			Message: fmt.Sprintf("Instance %s could not be found.", resourceID),
			cause:   err,
		}
	}

	// 2. State conflict, raised by the guard or late by the orchestrator.
	var conflict *StateConflictError
	if errors.As(err, &conflict) {
		return &ActionError{Kind: KindStateConflict, Message: conflict.Error(), Reason: conflict.Attr, cause: err}
	}
	var invalidState *compute.InvalidStateError
	if errors.As(err, &invalidState) {
		c := stateConflictFrom(action, resourceID, invalidState)
		return &ActionError{Kind: KindStateConflict, Message: c.Error(), Reason: c.Attr, cause: err}
	}

	// 3. Unsupported by the driver.
	if errors.Is(err, compute.ErrNotImplemented) {
		return &ActionError{
			Kind:    KindUnsupported,
			Message: fmt.Sprintf("The compute driver does not implement %s.", action),
			cause:   err,
		}
	}

	// 4. Unavailable dependency.
	if reason := dependencyReason(err); reason != "" {
		return &ActionError{Kind: KindUnavailableDependency, Message: err.Error(), Reason: reason, cause: err}
	}

	// 5. Unprocessable.
	if errors.Is(err, context.DeadlineExceeded) {
		return &ActionError{
			Kind:    KindUnprocessable,
			Message: fmt.Sprintf("Timed out while processing '%s' on instance %s", action, resourceID),
			Reason:  "timeout",
			cause:   err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &ActionError{
			Kind:    KindUnprocessable,
			Message: fmt.Sprintf("Request '%s' on instance %s was cancelled", action, resourceID),
			Reason:  "cancelled",
			cause:   err,
		}
	}
	if desc != nil && desc.FailureExplanation != nil && cmd != nil {
		return &ActionError{
			Kind:    KindUnavailableDependency,
			Message: desc.FailureExplanation(cmd),
			Reason:  "operation_failed",
			cause:   err,
		}
	}
	return &ActionError{
		Kind:    KindUnprocessable,
		Message: fmt.Sprintf("Error while processing '%s' on instance %s", action, resourceID),
		cause:   err,
	}
}

func classifyRequest(err error) *ActionError {
	if errors.Is(err, ErrUnknownAction) {
		return &ActionError{Kind: KindUnknownAction, Message: err.Error(), cause: err}
	}
	if errors.Is(err, ErrForbidden) {
		return &ActionError{Kind: KindForbidden, Message: "Policy doesn't allow this action to be performed.", cause: err}
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return &ActionError{Kind: KindInvalidRequest, Message: vErr.Message, Reason: vErr.Field, cause: err}
	}
	var quota *compute.QuotaExceededError
	if errors.As(err, &quota) {
		return &ActionError{
			Kind:    KindQuotaExceeded,
			Message: fmt.Sprintf("Quota exceeded for %s: requested %d, limit %d", quota.Resource, quota.Got, quota.Limit),
			Reason:  quota.Resource,
			cause:   err,
		}
	}
	var md *compute.InvalidMetadataError
	if errors.As(err, &md) {
		return &ActionError{Kind: KindInvalidRequest, Message: "Invalid metadata: " + md.Reason, Reason: "metadata", cause: err}
	}
	return nil
}

// dependencyReason names the sub-cause of an unavailable dependency, or
// returns "" if err is not one.
func dependencyReason(err error) string {
	var (
		unavailable *compute.ServiceUnavailableError
		hypervisor  *compute.InvalidHypervisorTypeError
		toSelf      *compute.MigrateToSelfError
		tooOld      *compute.DestinationTooOldError
	)
	switch {
	case errors.As(err, &unavailable):
		return "service_unavailable"
	case errors.As(err, &hypervisor):
		return "invalid_hypervisor_type"
	case errors.As(err, &toSelf):
		return "migrate_to_self"
	case errors.As(err, &tooOld):
		return "destination_too_old"
	case errors.Is(err, compute.ErrNoValidHost):
		return "no_valid_host"
	}
	return ""
}

func commandIdentity(desc *Descriptor, cmd *Command) (ActionName, string) {
	var action ActionName
	var resourceID string
	if desc != nil {
		action = desc.Name
	}
	if cmd != nil {
		if cmd.Action != "" {
			action = cmd.Action
		}
		resourceID = cmd.ResourceID
	}
	return action, resourceID
}
