package engine

import "github.com/flutter-demon/fdemon/internal/session"

// ActionKind is the closed set of side effects update() can request.
// Every action runs on its own goroutine and completes by sending one
// or more follow-up Messages back onto the engine's channel; no action
// mutates engine state directly.
type ActionKind int

const (
	ActionSpawnReload ActionKind = iota
	ActionSpawnRestart
	ActionSpawnStop
	ActionDiscoverDevices
	ActionDiscoverEmulators
	ActionLaunchEmulator
	ActionBootDevice
	ActionReloadAllSessions
)

// Action is one side effect requested by update(), to be executed by
// the runtime outside the update function itself.
type Action struct {
	Kind      ActionKind
	SessionID uint64
	AppID     string
	DeviceID  string
	Platform  string
	Cold      bool

	// Reloadable carries the (sessionID, appID) pairs for
	// ActionReloadAllSessions.
	Reloadable []session.ReloadableSession
}

// UpdateResult is what update() returns: an optional message to
// process immediately (without re-entering the channel) and/or an
// action for the runtime to execute asynchronously.
type UpdateResult struct {
	FollowUp *Message
	Action   *Action
}
