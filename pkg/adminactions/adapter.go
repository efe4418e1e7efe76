package adminactions

import (
	"context"
	"fmt"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// Adapter translates a guarded command into exactly one call on the
// orchestration subsystem. Errors are returned unchanged for the classifier.
type Adapter struct {
	orchestrator compute.Orchestrator
	store        compute.ResourceStore
}

// NewAdapter creates an Adapter.
func NewAdapter(orchestrator compute.Orchestrator, store compute.ResourceStore) *Adapter {
	return &Adapter{orchestrator: orchestrator, store: store}
}

type delegation struct {
	outcome *Outcome
	err     error
}

// Execute runs the call in its own goroutine and gives up when ctx ends. An
// abandoned call may still complete in the orchestrator; its result is
// discarded. A panic in the orchestrator is returned as an error.
func (a *Adapter) Execute(ctx context.Context, cmd *Command, inst *compute.Instance) (*Outcome, error) {
	done := make(chan delegation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- delegation{err: fmt.Errorf("orchestrator panic during %s: %v", cmd.Action, r)}
			}
		}()
		out, err := a.call(ctx, cmd, inst)
		done <- delegation{outcome: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-done:
		return d.outcome, d.err
	}
}

func (a *Adapter) call(ctx context.Context, cmd *Command, inst *compute.Instance) (*Outcome, error) {
	accepted := &Outcome{Status: StatusAccepted}
	o := a.orchestrator

	switch cmd.Action {
	case ActionPause:
		return accepted, o.Pause(ctx, inst)
	case ActionUnpause:
		return accepted, o.Unpause(ctx, inst)
	case ActionSuspend:
		return accepted, o.Suspend(ctx, inst)
	case ActionResume:
		return accepted, o.Resume(ctx, inst)
	case ActionMigrate:
		return accepted, o.Migrate(ctx, inst)
	case ActionResetNetwork:
		return accepted, o.ResetNetwork(ctx, inst)
	case ActionInjectNetworkInfo:
		return accepted, o.InjectNetworkInfo(ctx, inst)
	case ActionLock:
		return accepted, o.Lock(ctx, inst)
	case ActionUnlock:
		return accepted, o.Unlock(ctx, inst)
	case ActionRescue:
		return accepted, o.Rescue(ctx, inst)
	case ActionUnrescue:
		return accepted, o.Unrescue(ctx, inst)

	case ActionLiveMigrate:
		p, ok := cmd.Params.(LiveMigrateParams)
		if !ok {
			return nil, paramsMismatch(cmd)
		}
		return accepted, o.LiveMigrate(ctx, inst, p.BlockMigration, p.DiskOverCommit, p.Host)

	case ActionCreateBackup:
		p, ok := cmd.Params.(BackupParams)
		if !ok {
			return nil, paramsMismatch(cmd)
		}
		img, err := o.Backup(ctx, inst, p.Name, p.BackupType, p.Rotation, p.Metadata)
		if err != nil {
			return nil, err
		}
		if p.Rotation > 0 && img != nil {
			accepted.BackupImageID = img.ID
		}
		return accepted, nil

	case ActionResetState:
		p, ok := cmd.Params.(ResetStateParams)
		if !ok {
			return nil, paramsMismatch(cmd)
		}
		return accepted, a.store.ResetState(ctx, inst.ID, p.State)

	case ActionDiagnostics:
		diag, err := o.GetDiagnostics(ctx, inst)
		if err != nil {
			return nil, err
		}
		return &Outcome{Status: StatusCompleted, Diagnostics: diag}, nil
	}
	return nil, fmt.Errorf("no delegation for action %q", cmd.Action)
}

func paramsMismatch(cmd *Command) error {
	return fmt.Errorf("action %q received parameters of type %T", cmd.Action, cmd.Params)
}
