package adminactions

import "github.com/cloudcompute/admin-gateway/pkg/compute"

// CheckState returns a *StateConflictError unless current is in the action's
// compatible set. Task state is not inspected; the orchestrator rejects
// concurrent operations itself.
func CheckState(desc *Descriptor, resourceID string, current compute.VMState) error {
	if desc.AnyState {
		return nil
	}
	if desc.CompatibleStates != nil && desc.CompatibleStates.Contains(current) {
		return nil
	}
	return &StateConflictError{
		Action:     desc.Name,
		ResourceID: resourceID,
		Attr:       "vm_state",
		State:      string(current),
	}
}
