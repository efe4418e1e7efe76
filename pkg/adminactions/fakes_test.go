package adminactions

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// fakeStore is an in-memory ResourceStore that counts calls.
type fakeStore struct {
	mu        sync.Mutex
	instances map[string]*compute.Instance
	gets      int
	resets    int
	getErr    error
}

func newFakeStore(insts ...*compute.Instance) *fakeStore {
	s := &fakeStore{instances: map[string]*compute.Instance{}}
	for _, i := range insts {
		s.instances[i.ID] = i
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (*compute.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", compute.ErrInstanceNotFound, id)
	}
	cp := *inst
	return &cp, nil
}

func (s *fakeStore) ResetState(_ context.Context, id string, state compute.VMState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	inst, ok := s.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", compute.ErrInstanceNotFound, id)
	}
	inst.VMState = state
	inst.TaskState = compute.TaskNone
	return nil
}

func (s *fakeStore) state(id string) (compute.VMState, compute.TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.instances[id]
	return inst.VMState, inst.TaskState
}

// fakeOrchestrator records every call. err is returned from every method;
// block, when set, makes every call wait for the context; panicValue, when
// set, makes every call panic.
type fakeOrchestrator struct {
	mu         sync.Mutex
	calls      []string
	err        error
	block      bool
	panicValue any

	lastBackup      BackupParams
	lastLiveMigrate LiveMigrateParams
	image           *compute.Image
	diagnostics     map[string]any
}

func (o *fakeOrchestrator) do(ctx context.Context, name string) error {
	o.mu.Lock()
	o.calls = append(o.calls, name)
	block, err, p := o.block, o.err, o.panicValue
	o.mu.Unlock()
	if p != nil {
		panic(p)
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (o *fakeOrchestrator) Calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}

func (o *fakeOrchestrator) Pause(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Pause")
}
func (o *fakeOrchestrator) Unpause(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Unpause")
}
func (o *fakeOrchestrator) Suspend(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Suspend")
}
func (o *fakeOrchestrator) Resume(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Resume")
}
func (o *fakeOrchestrator) Migrate(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Migrate")
}
func (o *fakeOrchestrator) LiveMigrate(ctx context.Context, _ *compute.Instance, block, overCommit bool, host *string) error {
	o.mu.Lock()
	o.lastLiveMigrate = LiveMigrateParams{Host: host, BlockMigration: block, DiskOverCommit: overCommit}
	o.mu.Unlock()
	return o.do(ctx, "LiveMigrate")
}
func (o *fakeOrchestrator) ResetNetwork(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "ResetNetwork")
}
func (o *fakeOrchestrator) InjectNetworkInfo(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "InjectNetworkInfo")
}
func (o *fakeOrchestrator) Lock(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Lock")
}
func (o *fakeOrchestrator) Unlock(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Unlock")
}
func (o *fakeOrchestrator) Rescue(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Rescue")
}
func (o *fakeOrchestrator) Unrescue(ctx context.Context, _ *compute.Instance) error {
	return o.do(ctx, "Unrescue")
}
func (o *fakeOrchestrator) Backup(ctx context.Context, inst *compute.Instance, name, backupType string, rotation int, props map[string]string) (*compute.Image, error) {
	o.mu.Lock()
	o.lastBackup = BackupParams{Name: name, BackupType: backupType, Rotation: rotation, Metadata: props}
	img := o.image
	o.mu.Unlock()
	if err := o.do(ctx, "Backup"); err != nil {
		return nil, err
	}
	if img == nil {
		img = &compute.Image{ID: "img-1", InstanceID: inst.ID, Name: name}
	}
	return img, nil
}
func (o *fakeOrchestrator) GetDiagnostics(ctx context.Context, _ *compute.Instance) (map[string]any, error) {
	if err := o.do(ctx, "GetDiagnostics"); err != nil {
		return nil, err
	}
	return o.diagnostics, nil
}

// memRecorder keeps history records in memory.
type memRecorder struct {
	mu      sync.Mutex
	records []*InstanceActionRecord
	err     error
}

func (r *memRecorder) Append(_ context.Context, rec *InstanceActionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) all() []*InstanceActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*InstanceActionRecord(nil), r.records...)
}
