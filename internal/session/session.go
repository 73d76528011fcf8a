// Package session implements the Session/SessionManager state machine:
// per-app lifecycle, log pipeline ownership, and the ordered,
// capacity-bounded collection of running sessions.
package session

import (
	"sort"
	"strconv"
	"time"

	"github.com/flutter-demon/fdemon/internal/logpipeline"
	"github.com/flutter-demon/fdemon/internal/types"
)

// DefaultMaxLogs is the ring-buffer capacity for a session's log
// buffer (§3: "capacity ≈10 000").
const DefaultMaxLogs = 10000

// SearchState is a session's in-progress log search: the query text,
// the buffer indices it currently matches, and which match is focused.
type SearchState struct {
	Query        string
	Matches      []int
	CurrentMatch int // -1 when there is no active match
}

func newSearchState() SearchState {
	return SearchState{CurrentMatch: -1}
}

// FilterState narrows the visible log view without discarding data
// from the underlying ring buffer.
type FilterState struct {
	MinLevel     types.LogLevel
	SourceFilter *types.LogSource
}

// ReloadStats summarizes a session's reload/restart history.
type ReloadStats struct {
	Count         int
	LastDurationMS int64
	LastAt        time.Time
}

// Session owns one Flutter app instance's lifecycle state and log
// buffer. Not safe for concurrent use — only the engine's single
// update loop touches a Session's fields.
type Session struct {
	ID     uint64
	Device types.DeviceIdentity
	Phase  types.AppPhase

	AppID  string // empty until app.start
	Launch *types.LaunchConfig

	Pipeline *logpipeline.Pipeline

	ScrollOffset int
	Filter       FilterState
	Search       SearchState
	Collapse     *CollapseState

	reloadStats     ReloadStats
	reloadStartTime *time.Time
}

// New constructs a Session in the Initializing phase.
func New(id uint64, device types.DeviceIdentity, launch *types.LaunchConfig) *Session {
	return &Session{
		ID:       id,
		Device:   device,
		Phase:    types.PhaseInitializing,
		Launch:   launch,
		Pipeline: logpipeline.New(DefaultMaxLogs),
		Search:   newSearchState(),
		Collapse: NewCollapseState(),
	}
}

// AddLog is the log pipeline's entry point for already-constructed
// entries (lifecycle messages, reload results). Raw daemon/process
// output goes through Pipeline.FeedRaw/FeedAppLog instead.
func (s *Session) AddLog(entry types.LogEntry) {
	s.Pipeline.QueueEntry(entry)
}

// LogInfo appends an Info-severity app-sourced log line.
func (s *Session) LogInfo(message string) {
	s.AddLog(types.NewLogEntry(logpipeline.NextEntryID(), types.LevelInfo, types.SourceApp, message))
}

// LogError appends an Error-severity app-sourced log line.
func (s *Session) LogError(message string) {
	s.AddLog(types.NewLogEntry(logpipeline.NextEntryID(), types.LevelError, types.SourceApp, message))
}

// ClearLogs resets the buffer, error count, scroll offset, and search
// matches. Filter and collapse state are left untouched.
func (s *Session) ClearLogs() {
	s.Pipeline.Clear()
	s.ScrollOffset = 0
	s.Search = newSearchState()
}

// ErrorCount returns the session's cached Error-severity entry count.
func (s *Session) ErrorCount() int {
	return s.Pipeline.ErrorCount()
}

// RecalculateErrorCount forces a full recount, for self-test use.
func (s *Session) RecalculateErrorCount() int {
	return s.Pipeline.RecalculateErrorCount()
}

// --- lifecycle transitions ---

// MarkStarted transitions Initializing -> Running on the daemon's
// app.start event.
func (s *Session) MarkStarted(appID string) {
	s.AppID = appID
	s.Phase = types.PhaseRunning
	s.LogInfo("Flutter process started on " + s.Device.Name)
}

// MarkStopped transitions to Stopped, on app.stop or child exit.
func (s *Session) MarkStopped() {
	s.Phase = types.PhaseStopped
	s.reloadStartTime = nil
}

// IsBusy reports whether the session is mid-reload or tearing down,
// making it ineligible for a new reload request.
func (s *Session) IsBusy() bool {
	return s.Phase == types.PhaseReloading || s.Phase == types.PhaseQuitting
}

// StartReload transitions Running -> Reloading. A no-op (returns
// false) if the session is already busy.
func (s *Session) StartReload() bool {
	if s.IsBusy() {
		return false
	}
	s.Phase = types.PhaseReloading
	now := time.Now()
	s.reloadStartTime = &now
	return true
}

// CompleteReload transitions Reloading -> Running, recording the
// reload's duration and incrementing the reload count.
func (s *Session) CompleteReload(durationMS int64) {
	s.Phase = types.PhaseRunning
	s.reloadStats.Count++
	s.reloadStats.LastDurationMS = durationMS
	s.reloadStats.LastAt = time.Now()
	s.reloadStartTime = nil
	s.LogInfo("Reloaded in " + strconv.FormatInt(durationMS, 10) + "ms")
}

// FailReload transitions Reloading -> Running after a failed reload
// attempt, clearing reloadStartTime the same way CompleteReload does
// so the Phase/reloadStartTime invariant (Reloading iff reloadStartTime
// is set) holds on the failure path too, and logs the failure reason.
func (s *Session) FailReload(reason string) {
	s.Phase = types.PhaseRunning
	s.reloadStartTime = nil
	s.LogError("reload failed: " + reason)
}

// ReloadStartTime returns the reload start timestamp, non-nil iff
// Phase == Reloading.
func (s *Session) ReloadStartTime() *time.Time {
	return s.reloadStartTime
}

// ReloadStats returns the session's accumulated reload history.
func (s *Session) ReloadStats() ReloadStats {
	return s.reloadStats
}

// --- error navigation ---

// FindNextError searches circularly forward from just after fromIndex
// for the next Error-severity entry within the currently-filtered
// view, returning its buffer index.
func (s *Session) FindNextError(fromIndex int) (int, bool) {
	entries := s.Pipeline.Entries()
	filtered := s.filteredIndices()
	n := len(filtered)
	if n == 0 {
		return -1, false
	}
	start := sort.SearchInts(filtered, fromIndex+1)
	for step := 0; step < n; step++ {
		idx := filtered[(start+step)%n]
		if entries[idx].IsError() {
			return idx, true
		}
	}
	return -1, false
}

// FindPrevError searches circularly backward from just before
// fromIndex for the previous Error-severity entry within the
// currently-filtered view.
func (s *Session) FindPrevError(fromIndex int) (int, bool) {
	entries := s.Pipeline.Entries()
	filtered := s.filteredIndices()
	n := len(filtered)
	if n == 0 {
		return -1, false
	}
	start := sort.SearchInts(filtered, fromIndex) - 1
	for step := 0; step < n; step++ {
		idx := filtered[((start-step)%n+n)%n]
		if entries[idx].IsError() {
			return idx, true
		}
	}
	return -1, false
}

// FocusedEntry returns the entry at the current scroll position
// within the filtered view, if any.
func (s *Session) FocusedEntry() (types.LogEntry, bool) {
	filtered := s.filteredIndices()
	if s.ScrollOffset < 0 || s.ScrollOffset >= len(filtered) {
		return types.LogEntry{}, false
	}
	return s.Pipeline.Entries()[filtered[s.ScrollOffset]], true
}

func (s *Session) filteredIndices() []int {
	entries := s.Pipeline.Entries()
	indices := make([]int, 0, len(entries))
	for i, e := range entries {
		if e.Level < s.Filter.MinLevel {
			continue
		}
		if s.Filter.SourceFilter != nil && e.Source != *s.Filter.SourceFilter {
			continue
		}
		indices = append(indices, i)
	}
	return indices
}
