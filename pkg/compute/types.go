// Package compute is the orchestration boundary consumed by the admin action
// gateway, together with a small reference implementation backed by gorm.
//
// The gateway only talks to this package through ResourceStore, Orchestrator
// and QuotaChecker. Everything else here (stores, the conductor, the lifecycle
// machine) exists so the gateway can run end to end in a single process.
package compute

import (
	"context"
	"time"
)

// VMState is the recorded lifecycle phase of an instance.
type VMState string

const (
	VMStateActive    VMState = "active"
	VMStateBuilding  VMState = "building"
	VMStatePaused    VMState = "paused"
	VMStateSuspended VMState = "suspended"
	VMStateStopped   VMState = "stopped"
	VMStateRescued   VMState = "rescued"
	VMStateResized   VMState = "resized"
	VMStateError     VMState = "error"
	VMStateShelved   VMState = "shelved"
	VMStateDeleted   VMState = "deleted"
)

// TaskState marks an operation in progress. The zero value means no task.
type TaskState string

const (
	TaskNone            TaskState = ""
	TaskPausing         TaskState = "pausing"
	TaskUnpausing       TaskState = "unpausing"
	TaskSuspending      TaskState = "suspending"
	TaskResuming        TaskState = "resuming"
	TaskResizeMigrating TaskState = "resize_migrating"
	TaskMigrating       TaskState = "migrating"
	TaskImageBackup     TaskState = "image_backup"
	TaskRescuing        TaskState = "rescuing"
	TaskUnrescuing      TaskState = "unrescuing"
)

// Instance is the resource handle the gateway reads before acting.
type Instance struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	VMState        VMState   `json:"vm_state"`
	TaskState      TaskState `json:"task_state,omitempty"`
	Host           string    `json:"host,omitempty"`
	Locked         bool      `json:"locked"`
	HypervisorType string    `json:"hypervisor_type,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Host is a compute node that instances can run on or migrate to.
type Host struct {
	Name              string `json:"host_name"`
	Service           string `json:"service"`
	Zone              string `json:"zone,omitempty"`
	Enabled           bool   `json:"enabled"`
	HypervisorType    string `json:"hypervisor_type"`
	HypervisorVersion int    `json:"hypervisor_version"`
}

// Image is a snapshot or backup image produced from an instance.
type Image struct {
	ID         string            `json:"id"`
	InstanceID string            `json:"instance_id"`
	Name       string            `json:"name"`
	ImageType  string            `json:"image_type"`
	BackupType string            `json:"backup_type,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ResourceStore resolves resource identifiers to handles. ResetState is the
// one write path exposed to callers outside the orchestrator.
type ResourceStore interface {
	Get(ctx context.Context, id string) (*Instance, error)
	ResetState(ctx context.Context, id string, state VMState) error
}

// Orchestrator performs the operations behind each admin action. Accepted
// operations may complete asynchronously.
type Orchestrator interface {
	Pause(ctx context.Context, inst *Instance) error
	Unpause(ctx context.Context, inst *Instance) error
	Suspend(ctx context.Context, inst *Instance) error
	Resume(ctx context.Context, inst *Instance) error
	Migrate(ctx context.Context, inst *Instance) error
	LiveMigrate(ctx context.Context, inst *Instance, blockMigration, diskOverCommit bool, host *string) error
	ResetNetwork(ctx context.Context, inst *Instance) error
	InjectNetworkInfo(ctx context.Context, inst *Instance) error
	Lock(ctx context.Context, inst *Instance) error
	Unlock(ctx context.Context, inst *Instance) error
	Rescue(ctx context.Context, inst *Instance) error
	Unrescue(ctx context.Context, inst *Instance) error
	Backup(ctx context.Context, inst *Instance, name, backupType string, rotation int, extraProperties map[string]string) (*Image, error)
	GetDiagnostics(ctx context.Context, inst *Instance) (map[string]any, error)
}

// QuotaChecker enforces limits on user supplied image metadata.
type QuotaChecker interface {
	CheckMetadataQuota(ctx context.Context, metadata map[string]string) error
}
