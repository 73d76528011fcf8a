package engine

import (
	"github.com/flutter-demon/fdemon/internal/daemonproto"
	"github.com/flutter-demon/fdemon/internal/session"
	"github.com/flutter-demon/fdemon/internal/types"
)

// update is the pure Model-Message-Action step: given the current
// Model and one Message, it mutates the Model in place and returns at
// most one follow-up Message (processed immediately, without
// re-entering the channel) and/or one Action (handed to the runtime
// for out-of-band execution). update never blocks and never performs
// I/O itself.
func update(mgr *session.Manager, msg Message) UpdateResult {
	switch msg.Kind {
	case MsgTick:
		return UpdateResult{}

	case MsgRequestQuit:
		if h, ok := mgr.Selected(); ok {
			h.Session.Phase = types.PhaseQuitting
		}
		return UpdateResult{}

	case MsgSessionDaemonLine:
		return updateSessionDaemonLine(mgr, msg)

	case MsgHotReload:
		return updateHotReload(mgr, msg, false)
	case MsgHotRestart:
		return updateHotReload(mgr, msg, true)

	case MsgStopApp:
		h, ok := mgr.HandleByID(msg.SessionID)
		if !ok || h.Process == nil {
			return UpdateResult{}
		}
		return UpdateResult{Action: &Action{Kind: ActionSpawnStop, SessionID: msg.SessionID, AppID: h.Session.AppID}}

	case MsgScrollUp:
		if h, ok := mgr.Selected(); ok && h.Session.ScrollOffset > 0 {
			h.Session.ScrollOffset--
		}
		return UpdateResult{}
	case MsgScrollDown:
		if h, ok := mgr.Selected(); ok {
			h.Session.ScrollOffset++
		}
		return UpdateResult{}
	case MsgScrollToTop:
		if h, ok := mgr.Selected(); ok {
			h.Session.ScrollOffset = 0
		}
		return UpdateResult{}
	case MsgScrollToBottom:
		if h, ok := mgr.Selected(); ok {
			h.Session.ScrollOffset = h.Session.Pipeline.Len()
		}
		return UpdateResult{}
	case MsgPageUp:
		if h, ok := mgr.Selected(); ok {
			h.Session.ScrollOffset -= pageSize
			if h.Session.ScrollOffset < 0 {
				h.Session.ScrollOffset = 0
			}
		}
		return UpdateResult{}
	case MsgPageDown:
		if h, ok := mgr.Selected(); ok {
			h.Session.ScrollOffset += pageSize
		}
		return UpdateResult{}

	case MsgReloadCompleted:
		if h, ok := mgr.HandleByID(msg.SessionID); ok {
			h.Session.CompleteReload(msg.DurationMS)
		}
		return UpdateResult{}
	case MsgReloadFailed:
		if h, ok := mgr.HandleByID(msg.SessionID); ok {
			h.Session.FailReload(msg.Reason)
		}
		return UpdateResult{}

	case MsgSessionStarted:
		if h, ok := mgr.HandleByID(msg.SessionID); ok {
			h.Session.MarkStarted(msg.AppID)
		}
		return UpdateResult{}
	case MsgSessionExited:
		if h, ok := mgr.HandleByID(msg.SessionID); ok {
			h.Session.MarkStopped()
		}
		return UpdateResult{}

	case MsgFilesChanged:
		if h, ok := mgr.Selected(); ok {
			h.Session.LogInfo("files changed (not reloading)")
		}
		return UpdateResult{}
	case MsgAutoReloadTriggered:
		reloadable := mgr.ReloadableSessions()
		if len(reloadable) == 0 {
			return UpdateResult{}
		}
		return UpdateResult{Action: &Action{Kind: ActionReloadAllSessions, Reloadable: reloadable}}
	case MsgWatcherError:
		if h, ok := mgr.Selected(); ok {
			h.Session.LogError("watcher error: " + msg.Reason)
		}
		return UpdateResult{}

	case MsgDevicesDiscovered, MsgEmulatorsDiscovered, MsgDiscoveryFailed:
		// Discovery results are consumed by the runtime directly (they
		// feed a device picker, not session state); update() has
		// nothing to mutate for them.
		return UpdateResult{}

	default:
		return UpdateResult{}
	}
}

// pageSize is the number of log lines a Page Up/Down step moves.
const pageSize = 20

func updateHotReload(mgr *session.Manager, msg Message, full bool) UpdateResult {
	h, ok := mgr.HandleByID(msg.SessionID)
	if !ok || h.Process == nil || h.Session.IsBusy() {
		return UpdateResult{}
	}
	if !h.Session.StartReload() {
		return UpdateResult{}
	}
	kind := ActionSpawnReload
	if full {
		kind = ActionSpawnRestart
	}
	return UpdateResult{Action: &Action{Kind: kind, SessionID: msg.SessionID, AppID: h.Session.AppID}}
}

func updateSessionDaemonLine(mgr *session.Manager, msg Message) UpdateResult {
	h, ok := mgr.HandleByID(msg.SessionID)
	if !ok {
		return UpdateResult{}
	}

	parsed, consumed := daemonproto.Parse(msg.Line)
	if !consumed {
		h.Session.Pipeline.FeedRaw(types.SourceDaemon, msg.Line)
		return UpdateResult{}
	}

	if parsed.IsResponse {
		if h.Tracker != nil {
			h.Tracker.HandleResponse(parsed.ID, parsed.Result, parsed.Error)
		}
		return UpdateResult{}
	}

	switch parsed.Kind {
	case types.EventAppStart:
		return UpdateResult{FollowUp: &Message{Kind: MsgSessionStarted, SessionID: msg.SessionID, AppID: parsed.AppID}}
	case types.EventAppStop, types.EventAppStopped:
		return UpdateResult{FollowUp: &Message{Kind: MsgSessionExited, SessionID: msg.SessionID}}
	case types.EventAppLog:
		h.Session.Pipeline.FeedAppLog(parsed.LogMessage, parsed.LogError, parsed.StackTrace)
		return UpdateResult{}
	default:
		return UpdateResult{}
	}
}
