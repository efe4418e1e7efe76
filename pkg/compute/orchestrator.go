package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LocalOrchestratorConfig configures the reference orchestrator.
type LocalOrchestratorConfig struct {
	// DiagnosticsSupported reports whether the simulated driver can produce
	// diagnostics. When false GetDiagnostics returns ErrNotImplemented.
	DiagnosticsSupported bool
}

// LocalOrchestrator is a single-process Orchestrator backed by the gorm
// stores. It rejects any operation while a task is in progress and hands
// accepted tasks to a Conductor for completion.
type LocalOrchestrator struct {
	instances *InstanceStore
	hosts     *HostStore
	images    *ImageStore
	conductor *Conductor
	lifecycle *Lifecycle
	cfg       LocalOrchestratorConfig
	logger    *slog.Logger
	now       func() time.Time
}

var _ Orchestrator = (*LocalOrchestrator)(nil)

// NewLocalOrchestrator creates a LocalOrchestrator.
func NewLocalOrchestrator(
	instances *InstanceStore,
	hosts *HostStore,
	images *ImageStore,
	conductor *Conductor,
	lifecycle *Lifecycle,
	cfg LocalOrchestratorConfig,
	logger *slog.Logger,
) *LocalOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if lifecycle == nil {
		lifecycle = NewLifecycle()
	}
	return &LocalOrchestrator{
		instances: instances,
		hosts:     hosts,
		images:    images,
		conductor: conductor,
		lifecycle: lifecycle,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// startTask checks the lifecycle, claims the task marker and queues completion.
func (o *LocalOrchestrator) startTask(ctx context.Context, inst *Instance, op Operation, host string) error {
	if !o.lifecycle.Can(op, inst.VMState) {
		return &InvalidStateError{InstanceID: inst.ID, Attr: "vm_state", State: string(inst.VMState), Method: string(op)}
	}
	if err := o.instances.BeginTask(ctx, inst.ID, inst.VMState, o.lifecycle.Task(op), string(op)); err != nil {
		return err
	}
	if err := o.conductor.Submit(inst.ID, op, host); err != nil {
		// Roll the claim back so the instance is not stuck with a task marker.
		if rbErr := o.instances.FinishTask(ctx, inst.ID, inst.VMState, ""); rbErr != nil {
			o.logger.Error("failed to roll back task marker", "instance", inst.ID, "op", op, "error", rbErr)
		}
		return fmt.Errorf("queue %s for instance %s: %w", op, inst.ID, err)
	}
	o.logger.Info("task accepted", "instance", inst.ID, "op", op, "task_state", o.lifecycle.Task(op))
	return nil
}

// Pause implements Orchestrator.
func (o *LocalOrchestrator) Pause(ctx context.Context, inst *Instance) error {
	return o.startTask(ctx, inst, OpPause, "")
}

// Unpause implements Orchestrator.
func (o *LocalOrchestrator) Unpause(ctx context.Context, inst *Instance) error {
	return o.startTask(ctx, inst, OpUnpause, "")
}

// Suspend implements Orchestrator.
func (o *LocalOrchestrator) Suspend(ctx context.Context, inst *Instance) error {
	return o.startTask(ctx, inst, OpSuspend, "")
}

// Resume implements Orchestrator.
func (o *LocalOrchestrator) Resume(ctx context.Context, inst *Instance) error {
	return o.startTask(ctx, inst, OpResume, "")
}

// Rescue implements Orchestrator.
func (o *LocalOrchestrator) Rescue(ctx context.Context, inst *Instance) error {
	return o.startTask(ctx, inst, OpRescue, "")
}

// Unrescue implements Orchestrator.
func (o *LocalOrchestrator) Unrescue(ctx context.Context, inst *Instance) error {
	return o.startTask(ctx, inst, OpUnrescue, "")
}

// Migrate implements Orchestrator. The destination is chosen by the
// orchestrator among enabled hosts of the same hypervisor type.
func (o *LocalOrchestrator) Migrate(ctx context.Context, inst *Instance) error {
	dest, err := o.selectHost(ctx, inst)
	if err != nil {
		return err
	}
	return o.startTask(ctx, inst, OpMigrate, dest)
}

// LiveMigrate implements Orchestrator. A nil host lets the orchestrator pick.
func (o *LocalOrchestrator) LiveMigrate(ctx context.Context, inst *Instance, blockMigration, diskOverCommit bool, host *string) error {
	var dest string
	if host == nil {
		selected, err := o.selectHost(ctx, inst)
		if err != nil {
			return err
		}
		dest = selected
	} else {
		if err := o.checkLiveMigrationDestination(ctx, inst, *host); err != nil {
			return err
		}
		dest = *host
	}
	o.logger.Info("live migration requested",
		"instance", inst.ID, "source", inst.Host, "destination", dest,
		"block_migration", blockMigration, "disk_over_commit", diskOverCommit)
	return o.startTask(ctx, inst, OpLiveMigrate, dest)
}

func (o *LocalOrchestrator) checkLiveMigrationDestination(ctx context.Context, inst *Instance, host string) error {
	dest, err := o.hosts.Get(ctx, host)
	if err != nil {
		if errors.Is(err, ErrHostNotFound) {
			return &ServiceUnavailableError{Host: host}
		}
		return err
	}
	if !dest.Enabled {
		return &ServiceUnavailableError{Host: host}
	}
	if dest.Name == inst.Host {
		return &MigrateToSelfError{InstanceID: inst.ID, Host: inst.Host}
	}

	srcType, srcVersion := inst.HypervisorType, 0
	if src, err := o.hosts.Get(ctx, inst.Host); err == nil {
		srcType, srcVersion = src.HypervisorType, src.HypervisorVersion
	} else if !errors.Is(err, ErrHostNotFound) {
		return err
	}
	if srcType != "" && dest.HypervisorType != srcType {
		return &InvalidHypervisorTypeError{Source: srcType, Destination: dest.HypervisorType}
	}
	if dest.HypervisorVersion < srcVersion {
		return &DestinationTooOldError{Host: host, SourceVersion: srcVersion, DestinationVersion: dest.HypervisorVersion}
	}
	return nil
}

// selectHost picks the first enabled compute host, other than the current
// one, that runs the instance's hypervisor type.
func (o *LocalOrchestrator) selectHost(ctx context.Context, inst *Instance) (string, error) {
	hosts, err := o.hosts.List(ctx, "compute")
	if err != nil {
		return "", err
	}
	for _, h := range hosts {
		if !h.Enabled || h.Name == inst.Host {
			continue
		}
		if inst.HypervisorType != "" && h.HypervisorType != inst.HypervisorType {
			continue
		}
		return h.Name, nil
	}
	return "", ErrNoValidHost
}

// ResetNetwork implements Orchestrator.
func (o *LocalOrchestrator) ResetNetwork(ctx context.Context, inst *Instance) error {
	if err := o.requireHostUp(ctx, inst); err != nil {
		return err
	}
	o.logger.Info("network reset requested", "instance", inst.ID, "host", inst.Host)
	return nil
}

// InjectNetworkInfo implements Orchestrator.
func (o *LocalOrchestrator) InjectNetworkInfo(ctx context.Context, inst *Instance) error {
	if err := o.requireHostUp(ctx, inst); err != nil {
		return err
	}
	o.logger.Info("network info injection requested", "instance", inst.ID, "host", inst.Host)
	return nil
}

func (o *LocalOrchestrator) requireHostUp(ctx context.Context, inst *Instance) error {
	if inst.Host == "" {
		return &ServiceUnavailableError{Host: "(unscheduled)"}
	}
	h, err := o.hosts.Get(ctx, inst.Host)
	if err != nil {
		if errors.Is(err, ErrHostNotFound) {
			return &ServiceUnavailableError{Host: inst.Host}
		}
		return err
	}
	if !h.Enabled {
		return &ServiceUnavailableError{Host: inst.Host}
	}
	return nil
}

// Lock implements Orchestrator.
func (o *LocalOrchestrator) Lock(ctx context.Context, inst *Instance) error {
	return o.instances.SetLocked(ctx, inst.ID, true)
}

// Unlock implements Orchestrator.
func (o *LocalOrchestrator) Unlock(ctx context.Context, inst *Instance) error {
	return o.instances.SetLocked(ctx, inst.ID, false)
}

// Backup implements Orchestrator. The image is recorded immediately; older
// backups of the same type beyond rotation are deleted afterwards.
func (o *LocalOrchestrator) Backup(ctx context.Context, inst *Instance, name, backupType string, rotation int, extraProperties map[string]string) (*Image, error) {
	if !o.lifecycle.Can(OpBackup, inst.VMState) {
		return nil, &InvalidStateError{InstanceID: inst.ID, Attr: "vm_state", State: string(inst.VMState), Method: string(OpBackup)}
	}
	if err := o.instances.BeginTask(ctx, inst.ID, inst.VMState, TaskImageBackup, string(OpBackup)); err != nil {
		return nil, err
	}

	props := make(map[string]string, len(extraProperties)+3)
	for k, v := range extraProperties {
		props[k] = v
	}
	props["instance_uuid"] = inst.ID
	props["backup_type"] = backupType
	props["image_type"] = "backup"

	img := &Image{
		ID:         uuid.New().String(),
		InstanceID: inst.ID,
		Name:       name,
		ImageType:  "backup",
		BackupType: backupType,
		Properties: props,
		CreatedAt:  o.now(),
	}
	if err := o.images.Create(ctx, img); err != nil {
		_ = o.instances.FinishTask(ctx, inst.ID, inst.VMState, "")
		return nil, err
	}
	removed, err := o.images.Rotate(ctx, inst.ID, backupType, rotation)
	if err != nil {
		o.logger.Error("backup rotation failed", "instance", inst.ID, "backup_type", backupType, "error", err)
	} else if removed > 0 {
		o.logger.Info("rotated backups", "instance", inst.ID, "backup_type", backupType, "removed", removed, "rotation", rotation)
	}

	if err := o.conductor.Submit(inst.ID, OpBackup, ""); err != nil {
		_ = o.instances.FinishTask(ctx, inst.ID, inst.VMState, "")
		return nil, fmt.Errorf("queue backup for instance %s: %w", inst.ID, err)
	}
	return img, nil
}

// GetDiagnostics implements Orchestrator.
func (o *LocalOrchestrator) GetDiagnostics(ctx context.Context, inst *Instance) (map[string]any, error) {
	if !o.cfg.DiagnosticsSupported {
		return nil, ErrNotImplemented
	}
	if inst.VMState != VMStateActive {
		return nil, &InvalidStateError{InstanceID: inst.ID, Attr: "vm_state", State: string(inst.VMState), Method: "get_diagnostics"}
	}
	uptime := o.now().Sub(inst.UpdatedAt).Seconds()
	if uptime < 0 {
		uptime = 0
	}
	return map[string]any{
		"host":            inst.Host,
		"hypervisor_type": inst.HypervisorType,
		"state":           string(inst.VMState),
		"uptime_seconds":  int64(uptime),
		"locked":          inst.Locked,
	}, nil
}
