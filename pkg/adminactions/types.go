// Package adminactions implements the administrative action gateway: the
// registry of admin actions, parameter validation, the state guard, the
// delegation adapter and the error classifier shared by every action.
package adminactions

import (
	"encoding/json"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// ActionName identifies an administrative action. Values match the names
// accepted on the wire.
type ActionName string

const (
	ActionPause             ActionName = "pause"
	ActionUnpause           ActionName = "unpause"
	ActionSuspend           ActionName = "suspend"
	ActionResume            ActionName = "resume"
	ActionMigrate           ActionName = "migrate"
	ActionResetNetwork      ActionName = "resetNetwork"
	ActionInjectNetworkInfo ActionName = "injectNetworkInfo"
	ActionLock              ActionName = "lock"
	ActionUnlock            ActionName = "unlock"
	ActionCreateBackup      ActionName = "createBackup"
	ActionLiveMigrate       ActionName = "os-migrateLive"
	ActionResetState        ActionName = "os-resetState"
	ActionRescue            ActionName = "rescue"
	ActionUnrescue          ActionName = "unrescue"
	ActionDiagnostics       ActionName = "diagnostics"
)

// Mode tells whether a successful action is reported as accepted or completed.
type Mode string

const (
	// ModeAsync actions are accepted and finish in the orchestrator later.
	ModeAsync Mode = "async"
	// ModeSync actions return their result in the response.
	ModeSync Mode = "sync"
)

// ParamValidator turns a raw request body into typed parameters.
type ParamValidator func(body json.RawMessage) (Params, error)

// FailureExplainer produces the message reported when delegation fails for a
// reason the classifier does not recognize.
type FailureExplainer func(cmd *Command) string

// Descriptor is the static description of one admin action. Descriptors are
// immutable once registered.
type Descriptor struct {
	Name ActionName `json:"name"`

	// RequiredParams lists the body attributes the action needs.
	RequiredParams []string `json:"requiredParams,omitempty"`

	// Validate parses the body. Nil means the action takes no parameters and
	// the body is ignored.
	Validate ParamValidator `json:"-"`

	// CompatibleStates is the set of vm_state values the action may start
	// from. Ignored when AnyState is set.
	CompatibleStates mapset.Set[compute.VMState] `json:"-"`
	AnyState         bool                        `json:"anyState"`

	// ProducesTaskState is the task marker the orchestrator sets while the
	// action runs, empty if none.
	ProducesTaskState compute.TaskState `json:"producesTaskState,omitempty"`

	Mode Mode `json:"mode"`

	// ReadOnly actions do not change the resource.
	ReadOnly bool `json:"readOnly,omitempty"`

	// Privileged actions need the admin capability.
	Privileged bool `json:"privileged,omitempty"`

	// BypassGuard skips the state guard entirely.
	BypassGuard bool `json:"bypassGuard,omitempty"`

	FailureExplanation FailureExplainer `json:"-"`
}

// States returns the compatible states in a stable order, or nil for AnyState.
func (d *Descriptor) States() []compute.VMState {
	if d.AnyState || d.CompatibleStates == nil {
		return nil
	}
	states := d.CompatibleStates.ToSlice()
	sortStates(states)
	return states
}

// Params is the typed parameter set of a command.
type Params interface {
	isParams()
}

// NoParams is used by actions that take no body.
type NoParams struct{}

// BackupParams are the createBackup parameters.
type BackupParams struct {
	Name       string            `json:"name"`
	BackupType string            `json:"backup_type"`
	Rotation   int               `json:"rotation"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// LiveMigrateParams are the os-migrateLive parameters. A nil Host lets the
// orchestrator choose the destination.
type LiveMigrateParams struct {
	Host           *string `json:"host"`
	BlockMigration bool    `json:"block_migration"`
	DiskOverCommit bool    `json:"disk_over_commit"`
}

// ResetStateParams are the os-resetState parameters.
type ResetStateParams struct {
	State compute.VMState `json:"state"`
}

func (NoParams) isParams()          {}
func (BackupParams) isParams()      {}
func (LiveMigrateParams) isParams() {}
func (ResetStateParams) isParams()  {}

// Command is a validated request ready to be guarded and delegated.
type Command struct {
	Action     ActionName
	ResourceID string
	Params     Params
}

// OutcomeStatus is the success status of an action.
type OutcomeStatus string

const (
	StatusAccepted  OutcomeStatus = "accepted"
	StatusCompleted OutcomeStatus = "completed"
)

// Outcome is what the delegation adapter reports for a successful call.
type Outcome struct {
	Status OutcomeStatus

	// BackupImageID is set for createBackup when rotation is positive.
	BackupImageID string

	Diagnostics map[string]any
}
