// Package daemonproto frames and parses the Flutter daemon's line-based
// JSON-RPC protocol: each structured line is a single JSON object wrapped
// in a one-element array, either an event (`{"event":...,"params":...}`)
// or a response (`{"id":...,"result":...,"error":...}`).
package daemonproto

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/flutter-demon/fdemon/internal/fdebug"
	"github.com/flutter-demon/fdemon/internal/types"
)

type wireEvent struct {
	Event  string          `json:"event"`
	Params json.RawMessage `json:"params"`
}

type wireResponse struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type appStartParams struct {
	AppID           string `json:"appId"`
	DeviceID        string `json:"deviceId"`
	Directory       string `json:"directory"`
	SupportsReload  bool   `json:"supportsReload"`
	SupportsRestart bool   `json:"supportsRestart"`
}

type appProgressParams struct {
	ProgressID string `json:"progressId"`
	Finished   bool   `json:"finished"`
}

type appLogParams struct {
	AppID      string `json:"appId"`
	Log        string `json:"log"`
	Error      bool   `json:"error"`
	StackTrace string `json:"stackTrace"`
}

type appStopParams struct {
	AppID string `json:"appId"`
}

type appWebLaunchURLParams struct {
	AppID string `json:"appId"`
	URL   string `json:"url"`
}

type daemonLogMessageParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Parse takes one raw line of daemon stdout and returns the decoded
// message and true, or false if the line is not a structured daemon
// frame (non-JSON prologue/epilogue text, which the caller routes to
// raw-line severity detection instead).
func Parse(line string) (types.DaemonMessage, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") {
		return types.DaemonMessage{}, false
	}
	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return types.DaemonMessage{}, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		fdebug.Logf("daemonproto: line did not parse as JSON: %v", err)
		return types.DaemonMessage{}, false
	}

	var probe struct {
		Event string `json:"event"`
		ID    *uint64
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		fdebug.Logf("daemonproto: probe unmarshal failed: %v", err)
		return types.DaemonMessage{}, false
	}

	if probe.Event != "" {
		return parseEvent(raw)
	}

	var resp wireResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ID == nil {
		fdebug.Logf("daemonproto: neither event nor response shape: %s", raw)
		return types.DaemonMessage{}, false
	}
	return types.DaemonMessage{
		IsResponse: true,
		ID:         *resp.ID,
		Result:     resp.Result,
		Error:      resp.Error,
	}, true
}

func parseEvent(raw json.RawMessage) (types.DaemonMessage, bool) {
	var evt wireEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return types.DaemonMessage{}, false
	}

	switch types.DaemonEventKind(evt.Event) {
	case types.EventAppStart:
		var p appStartParams
		_ = json.Unmarshal(evt.Params, &p)
		return types.DaemonMessage{
			Kind: types.EventAppStart, AppID: p.AppID, DeviceID: p.DeviceID,
			Directory: p.Directory, SupportsReload: p.SupportsReload,
			SupportsRestart: p.SupportsRestart,
		}, true
	case types.EventAppProgress:
		var p appProgressParams
		_ = json.Unmarshal(evt.Params, &p)
		return types.DaemonMessage{Kind: types.EventAppProgress, ProgressID: p.ProgressID, Finished: p.Finished}, true
	case types.EventAppLog:
		var p appLogParams
		_ = json.Unmarshal(evt.Params, &p)
		return types.DaemonMessage{
			Kind: types.EventAppLog, AppID: p.AppID, LogMessage: p.Log,
			LogError: p.Error, StackTrace: p.StackTrace,
		}, true
	case types.EventAppStop, types.EventAppStopped:
		var p appStopParams
		_ = json.Unmarshal(evt.Params, &p)
		return types.DaemonMessage{Kind: types.DaemonEventKind(evt.Event), AppID: p.AppID}, true
	case types.EventAppWebLaunchURL:
		var p appWebLaunchURLParams
		_ = json.Unmarshal(evt.Params, &p)
		return types.DaemonMessage{Kind: types.EventAppWebLaunchURL, AppID: p.AppID, WebURL: p.URL}, true
	case types.EventDaemonConnected:
		return types.DaemonMessage{Kind: types.EventDaemonConnected}, true
	case types.EventDaemonLogMsg:
		var p daemonLogMessageParams
		_ = json.Unmarshal(evt.Params, &p)
		return types.DaemonMessage{Kind: types.EventDaemonLogMsg, LogMessage: p.Message, DaemonLogLevel: p.Level}, true
	default:
		fdebug.Logf("daemonproto: unknown event %q, degrading to no-op", evt.Event)
		return types.DaemonMessage{}, false
	}
}

// EncodeCommand serializes a daemon command ({"id":N,"method":...,
// "params":...}) as one line, newline-terminated, ready to write to the
// child's stdin.
func EncodeCommand(id uint64, method string, params interface{}) ([]byte, error) {
	payload := struct {
		ID     uint64      `json:"id"`
		Method string      `json:"method"`
		Params interface{} `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+3)
	out = append(out, '[')
	out = append(out, body...)
	out = append(out, ']', '\n')
	return out, nil
}

// ReloadParams, RestartParams, StopParams are the param shapes for the
// three daemon commands the core issues.
type ReloadParams struct {
	AppID string `json:"appId"`
}

type RestartParams struct {
	AppID string `json:"appId"`
}

type StopParams struct {
	AppID string `json:"appId"`
}
