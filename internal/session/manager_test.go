package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionSelectsFirstAutomatically(t *testing.T) {
	m := NewManager(2)
	h, err := m.CreateSession(device("D1"))
	require.NoError(t, err)

	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, h.Session.ID, sel.Session.ID)
}

func TestCreateSessionEnforcesCapacity(t *testing.T) {
	m := NewManager(1)
	_, err := m.CreateSession(device("D1"))
	require.NoError(t, err)

	_, err = m.CreateSession(device("D2"))
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestCreateSessionRejectsDuplicateDevice(t *testing.T) {
	m := NewManager(4)
	_, err := m.CreateSession(device("D1"))
	require.NoError(t, err)

	_, err = m.CreateSession(device("D1"))
	assert.ErrorIs(t, err, ErrDuplicateDevice)
}

func TestSessionIDsAreUniqueAndIncreasing(t *testing.T) {
	m := NewManager(4)
	h1, _ := m.CreateSession(device("D1"))
	h2, _ := m.CreateSession(device("D2"))
	assert.Less(t, h1.Session.ID, h2.Session.ID)
}

func TestRemoveSessionKeepsSelectionWhenSurvivorSelected(t *testing.T) {
	m := NewManager(4)
	h1, _ := m.CreateSession(device("D1"))
	h2, _ := m.CreateSession(device("D2"))
	require.True(t, m.SelectByID(h2.Session.ID))

	require.NoError(t, m.RemoveSession(h1.Session.ID))

	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, h2.Session.ID, sel.Session.ID)
}

func TestRemoveSelectedSessionMovesToNext(t *testing.T) {
	m := NewManager(4)
	h1, _ := m.CreateSession(device("D1"))
	_, _ = m.CreateSession(device("D2"))
	require.True(t, m.SelectByID(h1.Session.ID))

	require.NoError(t, m.RemoveSession(h1.Session.ID))
	_, ok := m.Selected()
	assert.True(t, ok)
}

func TestRemoveLastSessionClearsSelection(t *testing.T) {
	m := NewManager(4)
	h1, _ := m.CreateSession(device("D1"))
	require.NoError(t, m.RemoveSession(h1.Session.ID))

	_, ok := m.Selected()
	assert.False(t, ok)
}

func TestSelectNextAndPreviousWrap(t *testing.T) {
	m := NewManager(4)
	m.CreateSession(device("D1"))
	m.CreateSession(device("D2"))
	m.CreateSession(device("D3"))

	require.True(t, m.SelectByIndex(2))
	require.True(t, m.SelectNext())
	sel, _ := m.Selected()
	assert.Equal(t, m.Handles()[0].Session.ID, sel.Session.ID)

	require.True(t, m.SelectPrevious())
	sel, _ = m.Selected()
	assert.Equal(t, m.Handles()[2].Session.ID, sel.Session.ID)
}

func TestReloadableSessionsOnlyRunningWithAppID(t *testing.T) {
	m := NewManager(4)
	h1, _ := m.CreateSession(device("D1"))
	h2, _ := m.CreateSession(device("D2"))
	h1.Session.MarkStarted("A1")
	// h2 stays Initializing

	reloadable := m.ReloadableSessions()
	require.Len(t, reloadable, 1)
	assert.Equal(t, h1.Session.ID, reloadable[0].SessionID)
	_ = h2
}

func TestAnySessionBusy(t *testing.T) {
	m := NewManager(4)
	h1, _ := m.CreateSession(device("D1"))
	assert.False(t, m.AnySessionBusy())

	h1.Session.MarkStarted("A1")
	h1.Session.StartReload()
	assert.True(t, m.AnySessionBusy())
}

func TestPendingTrackerCountZeroAfterRemoval(t *testing.T) {
	m := NewManager(4)
	h1, _ := m.CreateSession(device("D1"))
	h1.Tracker.Register(h1.Tracker.NextID())
	h1.Tracker.Close()

	require.NoError(t, m.RemoveSession(h1.Session.ID))
	assert.Equal(t, 0, m.PendingTrackerCount())
}

func TestRemoveUnknownSessionErrors(t *testing.T) {
	m := NewManager(4)
	err := m.RemoveSession(999)
	assert.Error(t, err)
}

func TestHasRunningSessions(t *testing.T) {
	m := NewManager(4)
	h1, _ := m.CreateSession(device("D1"))
	assert.False(t, m.HasRunningSessions())
	h1.Session.MarkStarted("A1")
	assert.True(t, m.HasRunningSessions())
}
