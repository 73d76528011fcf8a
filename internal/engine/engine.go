package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flutter-demon/fdemon/internal/daemonproto"
	"github.com/flutter-demon/fdemon/internal/discovery"
	"github.com/flutter-demon/fdemon/internal/eventbus"
	"github.com/flutter-demon/fdemon/internal/fdebug"
	"github.com/flutter-demon/fdemon/internal/flutterproc"
	"github.com/flutter-demon/fdemon/internal/metrics"
	"github.com/flutter-demon/fdemon/internal/session"
	"github.com/flutter-demon/fdemon/internal/types"
	"github.com/flutter-demon/fdemon/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// msgChanCapacity matches the teacher's bounded mpsc::channel::<Message>(256):
// large enough to absorb a burst of daemon log lines between drain
// cycles without the producer side blocking.
const msgChanCapacity = 256

// Engine owns the single Message channel, the session table it drives,
// and the runtime state (discovered devices, quit flag) that update()
// itself does not mutate. Only Engine's own goroutines write to msgCh;
// update() never does I/O and never touches the channel.
type Engine struct {
	mgr        *session.Manager
	bus        *eventbus.Broadcaster
	watcher    *watcher.Watcher
	metrics    *metrics.Collectors
	msgCh      chan Message
	projectRoot string
	flutterBin string

	mu                sync.Mutex
	discoveredDevices []types.DeviceIdentity
	discoveredEmus    []discovery.Emulator
	quit              bool
}

// NewEngine constructs an idle Engine rooted at projectRoot. Call
// StartWatcher to begin bridging filesystem events, and Msgs to obtain
// the channel the caller's I/O goroutines (stdin reader, ticker, daemon
// line readers) send onto. collectors may be nil, in which case the
// engine runs metrics-free.
func NewEngine(projectRoot, flutterBin string, mgr *session.Manager, collectors *metrics.Collectors) *Engine {
	return &Engine{
		mgr:         mgr,
		bus:         eventbus.New(),
		watcher:     watcher.New(watcher.Config{}),
		metrics:     collectors,
		msgCh:       make(chan Message, msgChanCapacity),
		projectRoot: projectRoot,
		flutterBin:  flutterBin,
	}
}

// Msgs returns the send side of the engine's message channel.
func (e *Engine) Msgs() chan<- Message {
	return e.msgCh
}

// Subscribe registers a new eventbus subscriber for derived engine
// events (phase changes, reload completions, log batches).
func (e *Engine) Subscribe() (int, <-chan eventbus.Event) {
	return e.bus.Subscribe()
}

// ShouldQuit reports whether a MsgRequestQuit has been processed.
func (e *Engine) ShouldQuit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quit
}

// Devices returns the most recently discovered device list.
func (e *Engine) Devices() []types.DeviceIdentity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.discoveredDevices
}

// Emulators returns the most recently discovered emulator list.
func (e *Engine) Emulators() []discovery.Emulator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.discoveredEmus
}

// ProcessMessage runs one Message through update, immediately and
// recursively processing any FollowUp (no channel re-dispatch), and
// handing any Action to dispatchAction on its own goroutine. It
// returns the number of Messages consumed (1 plus any follow-up
// chain).
func (e *Engine) ProcessMessage(ctx context.Context, msg Message) int {
	consumed := 1
	result := update(e.mgr, msg)
	e.emitDerivedEvents(msg, result)

	if msg.Kind == MsgRequestQuit {
		e.mu.Lock()
		e.quit = true
		e.mu.Unlock()
	}

	if result.Action != nil {
		go e.dispatchAction(ctx, *result.Action)
	}
	if result.FollowUp != nil {
		consumed += e.ProcessMessage(ctx, *result.FollowUp)
	}
	return consumed
}

// DrainPendingMessages processes every Message currently buffered on
// the channel without blocking, returning the count processed. Mirrors
// the teacher's drain-before-render step: the channel is read until
// empty rather than one Message per tick, so a burst of daemon output
// does not lag behind the render loop.
func (e *Engine) DrainPendingMessages(ctx context.Context) int {
	total := 0
	for {
		select {
		case msg := <-e.msgCh:
			total += e.ProcessMessage(ctx, msg)
		default:
			return total
		}
	}
}

// FlushPendingLogs drains every session's batched log queue into its
// ring buffer and publishes a KindLogBatch event for any session that
// had entries inserted.
func (e *Engine) FlushPendingLogs() {
	for _, h := range e.mgr.Handles() {
		if !h.Session.Pipeline.ShouldFlush() && h.Session.Pipeline.TimeUntilFlush() > 0 {
			continue
		}
		result := h.Session.Pipeline.Flush()
		if len(result.Inserted) == 0 {
			continue
		}
		e.bus.Publish(eventbus.Event{Kind: eventbus.KindLogBatch, SessionID: h.Session.ID, Entries: result.Inserted})
	}
}

// StartWatcher begins the filesystem watcher under the engine's
// project root and bridges its events onto the Message channel until
// ctx is cancelled.
func (e *Engine) StartWatcher(ctx context.Context) error {
	if err := e.watcher.Start(ctx, e.projectRoot); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-e.watcher.Events():
				if !ok {
					return
				}
				e.msgCh <- watcherEventToMessage(evt)
			}
		}
	}()
	return nil
}

func watcherEventToMessage(evt watcher.Event) Message {
	switch evt.Kind {
	case watcher.EventAutoReloadTriggered:
		return Message{Kind: MsgAutoReloadTriggered, Count: evt.Count}
	case watcher.EventWatcherError:
		return Message{Kind: MsgWatcherError, Reason: evt.Message}
	default:
		return Message{Kind: MsgFilesChanged, Count: evt.Count}
	}
}

// Shutdown stops the watcher and tears down every running session's
// child process concurrently, waiting up to the given timeout per
// session. Sessions are independent Flutter processes with nothing to
// coordinate between them, so an errgroup fans the stop calls out
// instead of waiting on them one at a time.
func (e *Engine) Shutdown(ctx context.Context, timeout time.Duration) {
	e.watcher.Stop()

	var g errgroup.Group
	for _, h := range e.mgr.Handles() {
		h := h
		if h.Process == nil || h.Process.HasExited() {
			continue
		}
		g.Go(func() error {
			stopCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := h.Process.Stop(stopCtx, h.Session.AppID); err != nil {
				fdebug.Logf("engine: shutdown stop session %d: %v", h.Session.ID, err)
			}
			return nil
		})
	}
	g.Wait()

	e.bus.Publish(eventbus.Event{Kind: eventbus.KindShutdown})
}

// emitDerivedEvents compares the message just processed against its
// result to publish the handful of UI-relevant derived events the
// eventbus exists for. This is deliberately coarse: it does not diff
// full before/after snapshots, since the Message kind already pins
// down which derived event (if any) applies.
func (e *Engine) emitDerivedEvents(msg Message, result UpdateResult) {
	switch msg.Kind {
	case MsgSessionStarted:
		if h, ok := e.mgr.HandleByID(msg.SessionID); ok {
			e.bus.Publish(eventbus.Event{Kind: eventbus.KindPhaseChanged, SessionID: msg.SessionID, Phase: h.Session.Phase})
		}
		if e.metrics != nil {
			e.metrics.RecordSessionStarted()
		}
	case MsgSessionExited:
		if h, ok := e.mgr.HandleByID(msg.SessionID); ok {
			e.bus.Publish(eventbus.Event{Kind: eventbus.KindPhaseChanged, SessionID: msg.SessionID, Phase: h.Session.Phase})
		}
		if e.metrics != nil {
			e.metrics.RecordSessionStopped()
		}
	case MsgHotReload, MsgHotRestart:
		if result.Action != nil {
			e.bus.Publish(eventbus.Event{Kind: eventbus.KindReloadStarted, SessionID: msg.SessionID})
		}
	case MsgReloadCompleted:
		e.bus.Publish(eventbus.Event{Kind: eventbus.KindReloadCompleted, SessionID: msg.SessionID, ReloadDurationMS: msg.DurationMS})
	}
}

// dispatchAction executes one Action out of band and feeds its outcome
// back onto the channel as a follow-up Message. Grounded on the
// teacher's action-task-to-message-send pattern: no action mutates
// session state directly, it only ever sends.
func (e *Engine) dispatchAction(ctx context.Context, action Action) {
	switch action.Kind {
	case ActionSpawnReload:
		e.dispatchCommand(ctx, action, false)
	case ActionSpawnRestart:
		e.dispatchCommand(ctx, action, true)
	case ActionSpawnStop:
		e.dispatchStop(ctx, action)
	case ActionReloadAllSessions:
		for _, r := range action.Reloadable {
			e.dispatchCommand(ctx, Action{SessionID: r.SessionID, AppID: r.AppID}, false)
		}
	case ActionDiscoverDevices:
		e.dispatchDiscoverDevices(ctx)
	case ActionDiscoverEmulators:
		e.dispatchDiscoverEmulators(ctx)
	case ActionLaunchEmulator:
		e.dispatchLaunchEmulator(ctx, action)
	case ActionBootDevice:
		e.dispatchBootDevice(ctx, action)
	}
}

func (e *Engine) dispatchCommand(ctx context.Context, action Action, fullRestart bool) {
	h, ok := e.mgr.HandleByID(action.SessionID)
	if !ok || h.Process == nil {
		return
	}
	kind := "reload"
	method := "app.reload"
	var params interface{} = daemonproto.ReloadParams{AppID: action.AppID}
	if fullRestart {
		kind = "restart"
		method = "app.restart"
		params = daemonproto.RestartParams{AppID: action.AppID}
	}

	start := time.Now()
	_, err := h.Process.SendCommand(ctx, method, params)
	durationMS := time.Since(start).Milliseconds()
	if e.metrics != nil {
		e.metrics.RecordReload(kind, durationMS, err)
	}
	if err != nil {
		e.msgCh <- Message{Kind: MsgReloadFailed, SessionID: action.SessionID, Reason: err.Error()}
		return
	}
	e.msgCh <- Message{Kind: MsgReloadCompleted, SessionID: action.SessionID, DurationMS: durationMS}
}

func (e *Engine) dispatchStop(ctx context.Context, action Action) {
	h, ok := e.mgr.HandleByID(action.SessionID)
	if !ok || h.Process == nil {
		return
	}
	if err := h.Process.Stop(ctx, action.AppID); err != nil {
		fdebug.Logf("engine: stop session %d: %v", action.SessionID, err)
	}
	e.msgCh <- Message{Kind: MsgSessionExited, SessionID: action.SessionID}
}

func (e *Engine) dispatchDiscoverDevices(ctx context.Context) {
	devices, err := discovery.DiscoverDevices(ctx)
	if err != nil {
		e.msgCh <- Message{Kind: MsgDiscoveryFailed, Reason: err.Error()}
		return
	}
	e.mu.Lock()
	e.discoveredDevices = devices
	e.mu.Unlock()
	e.msgCh <- Message{Kind: MsgDevicesDiscovered, Devices: devices}
}

func (e *Engine) dispatchDiscoverEmulators(ctx context.Context) {
	emus, err := discovery.DiscoverEmulators(ctx)
	if err != nil {
		e.msgCh <- Message{Kind: MsgDiscoveryFailed, Reason: err.Error()}
		return
	}
	e.mu.Lock()
	e.discoveredEmus = emus
	e.mu.Unlock()
	e.msgCh <- Message{Kind: MsgEmulatorsDiscovered}
}

func (e *Engine) dispatchLaunchEmulator(ctx context.Context, action Action) {
	if err := discovery.LaunchEmulator(ctx, action.DeviceID, action.Cold); err != nil {
		e.msgCh <- Message{Kind: MsgDiscoveryFailed, Reason: err.Error()}
		return
	}
	e.dispatchDiscoverDevices(ctx)
}

func (e *Engine) dispatchBootDevice(ctx context.Context, action Action) {
	if err := discovery.BootSimulator(ctx, action.DeviceID); err != nil {
		e.msgCh <- Message{Kind: MsgDiscoveryFailed, Reason: err.Error()}
		return
	}
	e.dispatchDiscoverDevices(ctx)
}

// SpawnSession starts the Flutter child process for an already-created
// session Handle and begins streaming its stdout/stderr lines onto the
// Message channel as MsgSessionDaemonLine, tagged with the session's
// id so update() routes each line to the right Handle.
func (e *Engine) SpawnSession(ctx context.Context, sessionID uint64, launch types.LaunchConfig) error {
	h, ok := e.mgr.HandleByID(sessionID)
	if !ok {
		return context.Canceled
	}
	proc := flutterproc.New(h.Session.Device.ID, launch, h.Tracker)
	if err := proc.Spawn(ctx, e.flutterBin); err != nil {
		return err
	}
	h.Process = proc

	go func() {
		for evt := range proc.Events() {
			switch evt.Kind {
			case flutterproc.EventStdout:
				if e.metrics != nil {
					e.metrics.RecordLogLine("daemon")
				}
				e.msgCh <- Message{Kind: MsgSessionDaemonLine, SessionID: sessionID, Line: evt.Line}
			case flutterproc.EventStderr:
				if e.metrics != nil {
					e.metrics.RecordLogLine("app")
				}
				h.Session.Pipeline.FeedRaw(types.SourceFlutterError, evt.Line)
			case flutterproc.EventExited, flutterproc.EventSpawnFailed:
				e.msgCh <- Message{Kind: MsgSessionExited, SessionID: sessionID}
			}
		}
	}()
	return nil
}
