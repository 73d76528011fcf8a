// Package engine runs the single-threaded Model-Message-Action update
// loop: one channel of Messages is the only state-mutation gate, and
// every side effect (process spawn, command send, discovery, file
// watch) is represented as an Action the runtime executes out of band.
package engine

import "github.com/flutter-demon/fdemon/internal/types"

// Kind discriminates a Message's payload.
type Kind int

const (
	MsgTick Kind = iota
	MsgRequestQuit

	// Session-scoped daemon activity. SessionID identifies which
	// session's RequestTracker/Pipeline the raw line routes to.
	MsgSessionDaemonLine

	// User-facing control messages.
	MsgHotReload
	MsgHotRestart
	MsgStopApp
	MsgScrollUp
	MsgScrollDown
	MsgScrollToTop
	MsgScrollToBottom
	MsgPageUp
	MsgPageDown

	// Internal state updates, fed back in after an Action completes.
	MsgReloadStarted
	MsgReloadCompleted
	MsgReloadFailed
	MsgSessionStarted
	MsgSessionExited

	// File watcher bridge.
	MsgFilesChanged
	MsgAutoReloadTriggered
	MsgWatcherError

	// Discovery bridge.
	MsgDevicesDiscovered
	MsgEmulatorsDiscovered
	MsgDiscoveryFailed
)

// Message is a single input to the update loop. Only the fields
// relevant to Kind are populated; this mirrors the teacher's tagged
// Rust enum using a flat Go struct instead of per-variant payload
// types, since the loop only ever switches on Kind.
type Message struct {
	Kind      Kind
	SessionID uint64
	Line      string // MsgSessionDaemonLine: one raw stdout line
	Count     int    // MsgFilesChanged
	Reason    string // MsgReloadFailed / MsgWatcherError / MsgDiscoveryFailed
	DurationMS int64 // MsgReloadCompleted
	AppID     string // MsgSessionStarted

	Devices   []types.DeviceIdentity // MsgDevicesDiscovered
}
