// Package flutterproc owns one `flutter run --machine` child process:
// it streams stdout/stderr lines onto an event channel and multiplexes
// command writes onto the child's stdin, the same exec.CommandContext
// + StdoutPipe + bufio.Scanner streaming shape used for subprocess
// output elsewhere in the pack.
package flutterproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/flutter-demon/fdemon/internal/daemonproto"
	"github.com/flutter-demon/fdemon/internal/fdebug"
	"github.com/flutter-demon/fdemon/internal/reqtracker"
	"github.com/flutter-demon/fdemon/internal/types"
)

// EventKind discriminates the variants a Process can emit.
type EventKind int

const (
	EventStdout EventKind = iota
	EventStderr
	EventExited
	EventSpawnFailed
)

// Event is one item from a Process's event stream.
type Event struct {
	Kind     EventKind
	Line     string // Stdout, Stderr
	ExitCode int    // Exited
	Reason   string // SpawnFailed
}

const stopTimeout = 3 * time.Second

// Process owns one flutter child and the goroutines streaming its
// stdout/stderr. Commands are written through SendCommand, which
// correlates via a caller-supplied RequestTracker — the caller is
// expected to route parsed Response frames from the event stream back
// into the same tracker via HandleResponse.
type Process struct {
	deviceID string
	launch   types.LaunchConfig
	tracker  *reqtracker.Tracker

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan Event

	mu       sync.Mutex
	exited   bool
	exitCode int
}

// New prepares a Process for the given device and launch config. Call
// Spawn to actually start the child.
func New(deviceID string, launch types.LaunchConfig, tracker *reqtracker.Tracker) *Process {
	return &Process{
		deviceID: deviceID,
		launch:   launch,
		tracker:  tracker,
		events:   make(chan Event, 64),
	}
}

// Spawn starts `flutter run -d <deviceID> --machine [flags]` with the
// launch config's working directory, and begins streaming its output.
// ctx governs the child's lifetime: canceling it kills the process.
func (p *Process) Spawn(ctx context.Context, flutterBin string) error {
	args := []string{"run", "-d", p.deviceID, "--machine"}
	args = append(args, p.launch.Flags...)

	cmd := exec.CommandContext(ctx, flutterBin, args...)
	if p.launch.WorkingDir != "" {
		cmd.Dir = p.launch.WorkingDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("flutterproc: creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("flutterproc: creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("flutterproc: creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.events <- Event{Kind: EventSpawnFailed, Reason: err.Error()}
		close(p.events)
		return fmt.Errorf("flutterproc: starting flutter run: %w", err)
	}

	p.cmd = cmd
	p.stdin = stdin

	var streamWG sync.WaitGroup
	streamWG.Add(2)
	go p.streamLines(&streamWG, stdout, EventStdout)
	go p.streamLines(&streamWG, stderr, EventStderr)

	go func() {
		streamWG.Wait()
		err := cmd.Wait()
		code := exitCodeOf(err)

		p.mu.Lock()
		p.exited = true
		p.exitCode = code
		p.mu.Unlock()

		p.tracker.Close()
		p.events <- Event{Kind: EventExited, ExitCode: code}
		close(p.events)
	}()

	return nil
}

func (p *Process) streamLines(wg *sync.WaitGroup, r io.Reader, kind EventKind) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.events <- Event{Kind: kind, Line: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		fdebug.Logf("flutterproc: stream read error: %v", err)
	}
}

// Events returns the channel of stdout/stderr/lifecycle events. The
// channel is closed once the child has exited and both stream readers
// have drained.
func (p *Process) Events() <-chan Event {
	return p.events
}

// HasExited reports whether the child process has already exited,
// used by Stop to take the fast-exit path.
func (p *Process) HasExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// SendCommand writes one daemon command line to the child's stdin and
// waits for the correlated response via the shared RequestTracker.
func (p *Process) SendCommand(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if p.HasExited() {
		return nil, fmt.Errorf("flutterproc: cannot send %s: process has exited", method)
	}

	id := p.tracker.NextID()
	line, err := daemonproto.EncodeCommand(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("flutterproc: encoding command: %w", err)
	}

	respCh := p.tracker.Register(id)
	if _, err := p.stdin.Write(line); err != nil {
		return nil, fmt.Errorf("flutterproc: writing to stdin: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Closed {
			return nil, fmt.Errorf("flutterproc: %s: channel closed before response arrived", method)
		}
		if len(resp.Error) > 0 && string(resp.Error) != "null" {
			return nil, fmt.Errorf("flutterproc: %s: daemon returned error: %s", method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop performs the polite two-step shutdown: if appID is known, it
// sends app.stop with a bounded timeout; regardless, it then kills the
// process and waits for it to exit. If the child has already exited,
// the stop command is skipped entirely.
func (p *Process) Stop(ctx context.Context, appID string) error {
	if p.HasExited() {
		return nil
	}

	if appID != "" {
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		_, err := p.SendCommand(stopCtx, "app.stop", daemonproto.StopParams{AppID: appID})
		cancel()
		if err != nil {
			fdebug.Logf("flutterproc: app.stop failed, proceeding to kill: %v", err)
		}
	}

	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil {
			fdebug.Logf("flutterproc: kill failed (process may already be gone): %v", err)
		}
		for !p.HasExited() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
	return nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
