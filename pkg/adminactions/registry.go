package adminactions

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// Registry maps action names to descriptors. It is populated once at startup
// and only read afterwards, so lookups take no locks. Register must not be
// called once the registry is shared.
type Registry struct {
	actions map[ActionName]*Descriptor
	order   []ActionName
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[ActionName]*Descriptor)}
}

// Register adds a descriptor. It rejects empty or duplicate names and
// descriptors that are neither AnyState nor carry a compatible state.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("register action: name is required")
	}
	if _, exists := r.actions[d.Name]; exists {
		return fmt.Errorf("register action %q: already registered", d.Name)
	}
	if !d.AnyState && (d.CompatibleStates == nil || d.CompatibleStates.Cardinality() == 0) {
		return fmt.Errorf("register action %q: compatible state set is empty", d.Name)
	}
	if d.Mode == "" {
		d.Mode = ModeAsync
	}
	r.actions[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister is Register for startup wiring; a bad descriptor is a
// programming error.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor for name or ErrUnknownAction.
func (r *Registry) Lookup(name ActionName) (*Descriptor, error) {
	d, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return d, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []ActionName {
	return slices.Clone(r.order)
}

// Descriptors returns the registered descriptors in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.actions[n])
	}
	return out
}

func states(s ...compute.VMState) mapset.Set[compute.VMState] {
	return mapset.NewSet(s...)
}

func sortStates(s []compute.VMState) {
	slices.Sort(s)
}

// NewDefaultRegistry returns a registry holding every built-in admin action.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range DefaultDescriptors() {
		r.MustRegister(d)
	}
	return r
}

// DefaultDescriptors returns fresh descriptors for the built-in actions.
func DefaultDescriptors() []*Descriptor {
	return []*Descriptor{
		{
			Name:              ActionPause,
			CompatibleStates:  states(compute.VMStateActive, compute.VMStateRescued),
			ProducesTaskState: compute.TaskPausing,
			Mode:              ModeAsync,
		},
		{
			Name:              ActionUnpause,
			CompatibleStates:  states(compute.VMStatePaused),
			ProducesTaskState: compute.TaskUnpausing,
			Mode:              ModeAsync,
		},
		{
			Name:              ActionSuspend,
			CompatibleStates:  states(compute.VMStateActive),
			ProducesTaskState: compute.TaskSuspending,
			Mode:              ModeAsync,
		},
		{
			Name:              ActionResume,
			CompatibleStates:  states(compute.VMStateSuspended),
			ProducesTaskState: compute.TaskResuming,
			Mode:              ModeAsync,
		},
		{
			Name:               ActionMigrate,
			CompatibleStates:   states(compute.VMStateActive, compute.VMStateStopped),
			ProducesTaskState:  compute.TaskResizeMigrating,
			Mode:               ModeAsync,
			FailureExplanation: migrationFailure,
		},
		{
			Name:     ActionResetNetwork,
			AnyState: true,
			Mode:     ModeAsync,
		},
		{
			Name:     ActionInjectNetworkInfo,
			AnyState: true,
			Mode:     ModeAsync,
		},
		{
			Name:     ActionLock,
			AnyState: true,
			Mode:     ModeAsync,
		},
		{
			Name:     ActionUnlock,
			AnyState: true,
			Mode:     ModeAsync,
		},
		{
			Name:           ActionCreateBackup,
			RequiredParams: []string{"name", "backup_type", "rotation"},
			Validate:       validateBackup,
			CompatibleStates: states(
				compute.VMStateActive, compute.VMStateStopped,
				compute.VMStatePaused, compute.VMStateSuspended,
			),
			ProducesTaskState: compute.TaskImageBackup,
			Mode:              ModeAsync,
		},
		{
			Name:               ActionLiveMigrate,
			RequiredParams:     []string{"host", "block_migration", "disk_over_commit"},
			Validate:           validateLiveMigrate,
			CompatibleStates:   states(compute.VMStateActive, compute.VMStatePaused),
			ProducesTaskState:  compute.TaskMigrating,
			Mode:               ModeAsync,
			FailureExplanation: migrationFailure,
		},
		{
			Name:           ActionResetState,
			RequiredParams: []string{"state"},
			Validate:       validateResetState,
			AnyState:       true,
			Mode:           ModeAsync,
			Privileged:     true,
			BypassGuard:    true,
		},
		{
			Name:              ActionRescue,
			CompatibleStates:  states(compute.VMStateActive, compute.VMStateStopped, compute.VMStateError),
			ProducesTaskState: compute.TaskRescuing,
			Mode:              ModeAsync,
		},
		{
			Name:              ActionUnrescue,
			CompatibleStates:  states(compute.VMStateRescued),
			ProducesTaskState: compute.TaskUnrescuing,
			Mode:              ModeAsync,
		},
		{
			Name:     ActionDiagnostics,
			AnyState: true,
			Mode:     ModeSync,
			ReadOnly: true,
		},
	}
}

// migrationFailure explains a migration the orchestrator could not carry out.
func migrationFailure(cmd *Command) string {
	if p, ok := cmd.Params.(LiveMigrateParams); ok && p.Host != nil && *p.Host != "" {
		return fmt.Sprintf("Live migration of instance %s to host %s failed", cmd.ResourceID, *p.Host)
	}
	if cmd.Action == ActionMigrate {
		return fmt.Sprintf("Migration of instance %s to another host failed", cmd.ResourceID)
	}
	return fmt.Sprintf("Live migration of instance %s to another host failed", cmd.ResourceID)
}
