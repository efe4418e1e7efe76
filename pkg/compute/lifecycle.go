package compute

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/looplab/fsm"
)

// Operation names an orchestrator operation that runs as a task.
type Operation string

const (
	OpPause       Operation = "pause"
	OpUnpause     Operation = "unpause"
	OpSuspend     Operation = "suspend"
	OpResume      Operation = "resume"
	OpMigrate     Operation = "migrate"
	OpLiveMigrate Operation = "live_migrate"
	OpBackup      Operation = "backup"
	OpRescue      Operation = "rescue"
	OpUnrescue    Operation = "unrescue"
)

// operationSpec describes where an operation may start, which task marker it
// sets while running and where it leaves the instance. An empty Dst keeps
// vm_state unchanged.
type operationSpec struct {
	Src  []VMState
	Task TaskState
	Dst  VMState
}

var operations = map[Operation]operationSpec{
	OpPause:       {Src: []VMState{VMStateActive, VMStateRescued}, Task: TaskPausing, Dst: VMStatePaused},
	OpUnpause:     {Src: []VMState{VMStatePaused}, Task: TaskUnpausing, Dst: VMStateActive},
	OpSuspend:     {Src: []VMState{VMStateActive}, Task: TaskSuspending, Dst: VMStateSuspended},
	OpResume:      {Src: []VMState{VMStateSuspended}, Task: TaskResuming, Dst: VMStateActive},
	OpMigrate:     {Src: []VMState{VMStateActive, VMStateStopped}, Task: TaskResizeMigrating, Dst: VMStateResized},
	OpLiveMigrate: {Src: []VMState{VMStateActive, VMStatePaused}, Task: TaskMigrating},
	OpBackup:      {Src: []VMState{VMStateActive, VMStateStopped, VMStatePaused, VMStateSuspended}, Task: TaskImageBackup},
	OpRescue:      {Src: []VMState{VMStateActive, VMStateStopped, VMStateError}, Task: TaskRescuing, Dst: VMStateRescued},
	OpUnrescue:    {Src: []VMState{VMStateRescued}, Task: TaskUnrescuing, Dst: VMStateActive},
}

// lifecycleEvents builds the fsm event table from the operations that change
// vm_state.
func lifecycleEvents() fsm.Events {
	events := make(fsm.Events, 0, len(operations))
	for op, spec := range operations {
		if spec.Dst == "" {
			continue
		}
		src := make([]string, len(spec.Src))
		for i, s := range spec.Src {
			src[i] = string(s)
		}
		events = append(events, fsm.EventDesc{Name: string(op), Src: src, Dst: string(spec.Dst)})
	}
	return events
}

// Lifecycle answers which operations an instance may start and where they
// leave it. It is safe for concurrent use; every call works on a fresh machine.
type Lifecycle struct {
	events fsm.Events
}

// NewLifecycle creates the default instance lifecycle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{events: lifecycleEvents()}
}

func (l *Lifecycle) machine(current VMState) *fsm.FSM {
	return fsm.NewFSM(string(current), l.events, fsm.Callbacks{})
}

// Can reports whether op may start from the given vm_state.
func (l *Lifecycle) Can(op Operation, current VMState) bool {
	spec, ok := operations[op]
	if !ok {
		return false
	}
	if spec.Dst == "" {
		return slices.Contains(spec.Src, current)
	}
	return l.machine(current).Can(string(op))
}

// Task returns the task marker an operation sets while running.
func (l *Lifecycle) Task(op Operation) TaskState {
	return operations[op].Task
}

// Complete returns the vm_state an instance ends in once op finishes.
func (l *Lifecycle) Complete(ctx context.Context, op Operation, current VMState) (VMState, error) {
	spec, ok := operations[op]
	if !ok {
		return "", fmt.Errorf("unknown operation %q", op)
	}
	if spec.Dst == "" {
		return current, nil
	}
	m := l.machine(current)
	if err := m.Event(ctx, string(op)); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			return "", fmt.Errorf("complete %s from %s: %w", op, current, err)
		}
	}
	return VMState(m.Current()), nil
}
