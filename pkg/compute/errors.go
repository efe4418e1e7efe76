package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrInstanceNotFound is returned when an instance ID does not resolve.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrHostNotFound is returned when a host name does not resolve.
	ErrHostNotFound = errors.New("host not found")

	// ErrNotImplemented is returned when the active driver lacks an operation.
	ErrNotImplemented = errors.New("not implemented by the compute driver")

	// ErrNoValidHost is returned when no destination could be selected.
	ErrNoValidHost = errors.New("no valid host was found")
)

// InvalidStateError reports that an instance attribute holds a value the
// requested operation cannot start from.
type InvalidStateError struct {
	InstanceID string
	Attr       string // "vm_state" or "task_state"
	State      string
	Method     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("instance %s in %s %s, cannot %s while the instance is in this state",
		e.InstanceID, e.Attr, e.State, e.Method)
}

// ServiceUnavailableError reports a compute service that is down or disabled.
type ServiceUnavailableError struct {
	Host string
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("compute service of %s is unavailable at this time", e.Host)
}

// InvalidHypervisorTypeError reports a source/destination hypervisor mismatch.
type InvalidHypervisorTypeError struct {
	Source      string
	Destination string
}

func (e *InvalidHypervisorTypeError) Error() string {
	return fmt.Sprintf("the supplied hypervisor type %s is invalid, source is %s", e.Destination, e.Source)
}

// MigrateToSelfError reports a migration whose destination is the current host.
type MigrateToSelfError struct {
	InstanceID string
	Host       string
}

func (e *MigrateToSelfError) Error() string {
	return fmt.Sprintf("unable to migrate instance (%s) to current host (%s)", e.InstanceID, e.Host)
}

// DestinationTooOldError reports a destination hypervisor older than the source.
type DestinationTooOldError struct {
	Host               string
	SourceVersion      int
	DestinationVersion int
}

func (e *DestinationTooOldError) Error() string {
	return fmt.Sprintf("the instance requires a newer hypervisor version than has been provided by destination %s (%d < %d)",
		e.Host, e.DestinationVersion, e.SourceVersion)
}

// QuotaExceededError reports metadata exceeding the configured item limit.
type QuotaExceededError struct {
	Resource string
	Limit    int
	Got      int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: requested %d, limit %d", e.Resource, e.Got, e.Limit)
}

// InvalidMetadataError reports a malformed metadata key or value.
type InvalidMetadataError struct {
	Reason string
}

func (e *InvalidMetadataError) Error() string {
	return "invalid metadata: " + e.Reason
}
