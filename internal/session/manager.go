package session

import (
	"fmt"
	"sync/atomic"

	"github.com/flutter-demon/fdemon/internal/flutterproc"
	"github.com/flutter-demon/fdemon/internal/reqtracker"
	"github.com/flutter-demon/fdemon/internal/types"
)

// DefaultMaxSessions is the hard ceiling on concurrent Flutter app
// instances a Manager will hold.
const DefaultMaxSessions = 8

// globalSessionID is the process-wide singleton counter backing
// Session.ID, per the design note that the session-id counter is the
// only acceptable global mutable state.
var globalSessionID atomic.Uint64

func nextSessionID() uint64 {
	return globalSessionID.Add(1)
}

// ErrAtCapacity is returned by CreateSession when MaxSessions would be
// exceeded.
var ErrAtCapacity = fmt.Errorf("session manager is at capacity")

// ErrDuplicateDevice is returned when a session already exists for
// the requested device id.
var ErrDuplicateDevice = fmt.Errorf("a session already exists for this device")

// Handle bundles a Session with its owning Flutter child process, the
// request tracker shared between them, and a command sender once the
// process has been spawned.
type Handle struct {
	Session *Session
	Process *flutterproc.Process
	Tracker *reqtracker.Tracker
}

// Manager is the ordered, capacity-bounded collection of session
// Handles plus the currently-selected index.
type Manager struct {
	handles     []*Handle
	selectedIdx int
	maxSessions int
}

func NewManager(maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{selectedIdx: -1, maxSessions: maxSessions}
}

// CreateSession allocates a new Session and Handle for device, with no
// launch config override.
func (m *Manager) CreateSession(device types.DeviceIdentity) (*Handle, error) {
	return m.CreateSessionWithConfig(device, nil)
}

// CreateSessionWithConfig allocates a new Session and Handle for
// device, enforcing the capacity ceiling and device-id uniqueness.
func (m *Manager) CreateSessionWithConfig(device types.DeviceIdentity, launch *types.LaunchConfig) (*Handle, error) {
	if len(m.handles) >= m.maxSessions {
		return nil, ErrAtCapacity
	}
	for _, h := range m.handles {
		if h.Session.Device.ID == device.ID {
			return nil, ErrDuplicateDevice
		}
	}

	tracker := reqtracker.New()
	sess := New(nextSessionID(), device, launch)
	handle := &Handle{Session: sess, Tracker: tracker}
	m.handles = append(m.handles, handle)

	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	return handle, nil
}

// RemoveSession removes the session with the given id. Selection is
// stable if the currently-selected session survives; otherwise the
// next session (or the last one, if the removed session was last) is
// selected.
func (m *Manager) RemoveSession(id uint64) error {
	idx := m.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("no session with id %d", id)
	}

	selectedHandle := m.selected()
	m.handles = append(m.handles[:idx], m.handles[idx+1:]...)

	switch {
	case len(m.handles) == 0:
		m.selectedIdx = -1
	case selectedHandle != nil && selectedHandle.Session.ID != id:
		m.selectedIdx = m.indexOf(selectedHandle.Session.ID)
	default:
		if m.selectedIdx >= len(m.handles) {
			m.selectedIdx = len(m.handles) - 1
		}
	}
	return nil
}

func (m *Manager) indexOf(id uint64) int {
	for i, h := range m.handles {
		if h.Session.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) selected() *Handle {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.handles) {
		return nil
	}
	return m.handles[m.selectedIdx]
}

// Selected returns the currently-selected Handle, or false if none.
func (m *Manager) Selected() (*Handle, bool) {
	h := m.selected()
	return h, h != nil
}

// HandleByID returns the Handle for the given session id, or false if
// no such session exists.
func (m *Manager) HandleByID(id uint64) (*Handle, bool) {
	idx := m.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	return m.handles[idx], true
}

// SelectByID selects the session with the given id, returning false
// if no such session exists.
func (m *Manager) SelectByID(id uint64) bool {
	idx := m.indexOf(id)
	if idx < 0 {
		return false
	}
	m.selectedIdx = idx
	return true
}

// SelectByIndex selects the session at the given position.
func (m *Manager) SelectByIndex(idx int) bool {
	if idx < 0 || idx >= len(m.handles) {
		return false
	}
	m.selectedIdx = idx
	return true
}

// SelectNext moves selection to the next session, wrapping around.
func (m *Manager) SelectNext() bool {
	if len(m.handles) == 0 {
		return false
	}
	m.selectedIdx = (m.selectedIdx + 1) % len(m.handles)
	return true
}

// SelectPrevious moves selection to the previous session, wrapping
// around.
func (m *Manager) SelectPrevious() bool {
	if len(m.handles) == 0 {
		return false
	}
	m.selectedIdx = ((m.selectedIdx-1)%len(m.handles) + len(m.handles)) % len(m.handles)
	return true
}

// Handles returns the ordered list of session handles.
func (m *Manager) Handles() []*Handle {
	return m.handles
}

// HasRunningSessions reports whether any session is in the Running
// phase.
func (m *Manager) HasRunningSessions() bool {
	for _, h := range m.handles {
		if h.Session.Phase == types.PhaseRunning {
			return true
		}
	}
	return false
}

// AnySessionBusy reports whether any session is mid-reload or
// tearing down.
func (m *Manager) AnySessionBusy() bool {
	for _, h := range m.handles {
		if h.Session.IsBusy() {
			return true
		}
	}
	return false
}

// ReloadableSession names a session eligible for a reload/restart
// request: it has an assigned app-id and is not already busy.
type ReloadableSession struct {
	SessionID uint64
	AppID     string
}

// ReloadableSessions returns every session currently eligible to
// receive a reload request.
func (m *Manager) ReloadableSessions() []ReloadableSession {
	var out []ReloadableSession
	for _, h := range m.handles {
		if h.Session.Phase == types.PhaseRunning && h.Session.AppID != "" {
			out = append(out, ReloadableSession{SessionID: h.Session.ID, AppID: h.Session.AppID})
		}
	}
	return out
}

// FlushAllPendingLogs drains every session's pending log batch into
// its ring buffer, returning the total number of entries evicted
// across all sessions.
func (m *Manager) FlushAllPendingLogs() int {
	evicted := 0
	for _, h := range m.handles {
		if h.Session.Pipeline.ShouldFlush() || h.Session.Pipeline.TimeUntilFlush() <= 0 {
			result := h.Session.Pipeline.Flush()
			evicted += result.Evicted
		}
	}
	return evicted
}

// PendingTrackerCount sums the pending-request count across every
// session's RequestTracker. Used to assert the invariant that no
// tracker holds entries for a removed session.
func (m *Manager) PendingTrackerCount() int {
	total := 0
	for _, h := range m.handles {
		total += h.Tracker.PendingCount()
	}
	return total
}
