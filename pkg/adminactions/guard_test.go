package adminactions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

var allStates = []compute.VMState{
	compute.VMStateActive, compute.VMStateBuilding, compute.VMStatePaused, compute.VMStateSuspended,
	compute.VMStateStopped, compute.VMStateRescued, compute.VMStateResized, compute.VMStateError,
	compute.VMStateShelved, compute.VMStateDeleted,
}

func TestCheckState_AllDescriptors(t *testing.T) {
	for _, d := range NewDefaultRegistry().Descriptors() {
		for _, s := range allStates {
			err := CheckState(d, "vm-1", s)
			if d.AnyState || d.CompatibleStates.Contains(s) {
				assert.NoError(t, err, "%s from %s", d.Name, s)
				continue
			}
			var conflict *StateConflictError
			require.ErrorAs(t, err, &conflict, "%s from %s", d.Name, s)
			assert.Equal(t, d.Name, conflict.Action)
			assert.Equal(t, string(s), conflict.State)
		}
	}
}

func TestCheckState_Message(t *testing.T) {
	err := CheckState(mustLookup(t, ActionUnpause), "vm-1", compute.VMStateActive)
	assert.EqualError(t, err, "Cannot 'unpause' instance vm-1 while it is in vm_state active")
}
