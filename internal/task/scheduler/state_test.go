package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		stopping, empty, due bool
		want                 State
	}{
		{stopping: true, empty: true, due: false, want: StateTerminated},
		{stopping: true, empty: true, due: true, want: StateTerminated},
		{stopping: false, empty: true, due: false, want: StateIdle},
		{stopping: false, empty: true, due: true, want: StateIdle},
		{stopping: false, empty: false, due: true, want: StateDispatching},
		{stopping: true, empty: false, due: true, want: StateDispatching},
		{stopping: false, empty: false, due: false, want: StatePolling},
		{stopping: true, empty: false, due: false, want: StateDraining},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextState(tt.stopping, tt.empty, tt.due), "stopping=%v empty=%v due=%v", tt.stopping, tt.empty, tt.due)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "dispatching", StateDispatching.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", State(42).String())
}
