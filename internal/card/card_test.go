package card

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreezeFromActive(t *testing.T) {
	c := &Card{State: Active}
	require.NoError(t, c.Freeze())
	assert.Equal(t, Frozen, c.State)
}

func TestFreezeFromClosedFails(t *testing.T) {
	c := &Card{State: Closed}
	assert.ErrorIs(t, c.Freeze(), ErrInvalidTransition)
}

func TestActivateFromFrozen(t *testing.T) {
	c := &Card{State: Frozen}
	require.NoError(t, c.Activate())
	assert.Equal(t, Active, c.State)
}

func TestActivateFromActiveFails(t *testing.T) {
	c := &Card{State: Active}
	assert.ErrorIs(t, c.Activate(), ErrInvalidTransition)
}

func TestCloseIsTerminal(t *testing.T) {
	c := &Card{State: Active}
	require.NoError(t, c.Close())
	assert.Equal(t, Closed, c.State)
	assert.ErrorIs(t, c.Close(), ErrInvalidTransition)
}

func TestIsExpired(t *testing.T) {
	c := &Card{ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, c.IsExpired(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, c.IsExpired(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, c.IsExpired(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
}
