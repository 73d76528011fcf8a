package types

import "encoding/json"

// DaemonEventKind discriminates the event-shaped daemon messages this
// core consumes. Unknown events degrade to DaemonUnknown rather than
// an error — new events can appear in future Flutter SDKs.
type DaemonEventKind string

const (
	EventAppStart        DaemonEventKind = "app.start"
	EventAppProgress     DaemonEventKind = "app.progress"
	EventAppLog          DaemonEventKind = "app.log"
	EventAppStop         DaemonEventKind = "app.stop"
	EventAppStopped      DaemonEventKind = "app.stopped"
	EventAppWebLaunchURL DaemonEventKind = "app.webLaunchUrl"
	EventDaemonConnected DaemonEventKind = "daemon.connected"
	EventDaemonLogMsg    DaemonEventKind = "daemon.logMessage"
	EventUnknown         DaemonEventKind = ""
)

// DaemonMessage is the tagged union of everything the Daemon Protocol
// Codec can produce from one line of daemon stdout.
type DaemonMessage struct {
	// Kind discriminates which fields below are meaningful. It stays
	// EventUnknown for a response frame (an object carrying an "id" key
	// instead of an "event" key); IsResponse marks those instead.
	Kind DaemonEventKind

	// IsResponse is true for request/response correlation frames
	// (the RequestTracker consumes these, not the event fields below).
	IsResponse bool

	// --- event fields, populated by Kind ---
	AppID          string
	DeviceID       string
	Directory      string
	SupportsReload bool
	SupportsRestart bool

	ProgressID string
	Finished   bool

	LogMessage  string
	LogError    bool // app.log params.error
	StackTrace  string

	WebURL string

	DaemonLogLevel string // daemon.logMessage params.level

	// --- response fields, populated when IsResponse ---
	ID     uint64
	Result json.RawMessage
	Error  json.RawMessage
}

// LaunchConfig carries the extra flags appended to `flutter run` for one
// session, and the project-relative directory flutter should treat as
// its working directory.
type LaunchConfig struct {
	Name       string
	Flags      []string
	WorkingDir string
}

// DeviceIdentity names a Flutter target device or emulator.
type DeviceIdentity struct {
	ID       string
	Name     string
	Platform string
	Emulator bool
}

// AppPhase is a Session's lifecycle state (§3, §4.F).
type AppPhase int

const (
	PhaseInitializing AppPhase = iota
	PhaseRunning
	PhaseReloading
	PhaseStopped
	PhaseQuitting
)

func (p AppPhase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseReloading:
		return "reloading"
	case PhaseStopped:
		return "stopped"
	case PhaseQuitting:
		return "quitting"
	default:
		return "unknown"
	}
}
