package wizard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardValidWhileStepCurrent(t *testing.T) {
	o, _ := newTestOrchestrator(t, sixSteps())
	g := NewGuard(o)
	require.NoError(t, o.Activate(5))

	id := NewID("recognize")
	g.Register(id, 5)

	assert.True(t, g.IsValid(id))
	assert.Equal(t, 1, g.Pending())
}

func TestGuardInvalidAfterStepChange(t *testing.T) {
	o, _ := newTestOrchestrator(t, sixSteps())
	g := NewGuard(o)
	require.NoError(t, o.Activate(5))
	id := NewID("recognize")
	g.Register(id, 5)

	require.NoError(t, o.Activate(6))

	assert.False(t, g.IsValid(id))
	assert.Equal(t, 0, g.Pending())
}

func TestGuardInvalidAfterReactivation(t *testing.T) {
	o, _ := newTestOrchestrator(t, sixSteps())
	g := NewGuard(o)
	require.NoError(t, o.Activate(5))
	id := NewID("recognize")
	g.Register(id, 5)

	require.NoError(t, o.Activate(5))

	assert.False(t, g.IsValid(id))
}

func TestGuardUnknownAndCleared(t *testing.T) {
	o, _ := newTestOrchestrator(t, sixSteps())
	g := NewGuard(o)
	require.NoError(t, o.Activate(4))

	assert.False(t, g.IsValid("missing"))

	a, b := NewID("token"), NewID("token")
	g.Register(a, 4)
	g.Register(b, 4)
	g.Unregister(a)
	assert.False(t, g.IsValid(a))
	assert.True(t, g.IsValid(b))

	g.Clear()
	assert.False(t, g.IsValid(b))
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID("op"), NewID("op")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "op_"))
}
