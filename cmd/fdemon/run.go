package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/flutter-demon/fdemon/internal/discovery"
	"github.com/flutter-demon/fdemon/internal/engine"
	"github.com/flutter-demon/fdemon/internal/eventbus"
	"github.com/flutter-demon/fdemon/internal/fdebug"
	"github.com/flutter-demon/fdemon/internal/ferrors"
	"github.com/flutter-demon/fdemon/internal/metrics"
	"github.com/flutter-demon/fdemon/internal/session"
	"github.com/flutter-demon/fdemon/internal/settings"
	"github.com/flutter-demon/fdemon/internal/types"
)

// tickInterval paces the drain/flush loop between daemon line arrivals
// and eventbus notifications; it is not the batch flush interval
// itself (logpipeline owns that), just how often the outer loop checks.
const tickInterval = 100 * time.Millisecond

const shutdownTimeout = 5 * time.Second

// runEngine is the entrypoint's whole bootstrap-and-drive sequence:
// resolve the project, load settings, find a device, spawn one
// session, and loop printing what the engine reports until ctx is
// cancelled. It deliberately does not render a TUI; that is an
// external collaborator's job (spec §1 Non-goals).
func runEngine(ctx context.Context, projectPath string) error {
	root, err := filepath.Abs(projectPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(root, "pubspec.yaml")); err != nil {
		return ferrors.NoProject(root)
	}

	cfg, err := settings.NewLoader(root).LoadConfig()
	if err != nil {
		return err
	}

	flutterBin, err := exec.LookPath(cfg.FlutterBin)
	if err != nil {
		return ferrors.New(ferrors.KindFlutterNotFound, cfg.FlutterBin)
	}

	mgr := session.NewManager(session.DefaultMaxSessions)
	collectors := metrics.New()
	eng := engine.NewEngine(root, flutterBin, mgr, collectors)

	if err := eng.StartWatcher(ctx); err != nil {
		fdebug.Logf("fdemon: watcher did not start: %v", err)
	}

	devices, err := discovery.DiscoverDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("no connected devices or running emulators found")
	}
	target := devices[0]

	launchID := uuid.New().String()
	fdebug.Logf("fdemon: launch request %s targeting %s (%s)", launchID, target.Name, target.ID)

	handle, err := mgr.CreateSession(target)
	if err != nil {
		return err
	}
	if err := eng.SpawnSession(ctx, handle.Session.ID, types.LaunchConfig{WorkingDir: root}); err != nil {
		return err
	}

	_, events := eng.Subscribe()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			eng.Shutdown(context.Background(), shutdownTimeout)
			return nil
		case evt := <-events:
			printEvent(evt)
		case <-ticker.C:
			eng.DrainPendingMessages(ctx)
			eng.FlushPendingLogs()
			if eng.ShouldQuit() {
				eng.Shutdown(context.Background(), shutdownTimeout)
				return nil
			}
		}
	}
}

// printEvent is the thin default renderer: plain lines to stdout.
// A real terminal UI is an external collaborator (spec §1 Non-goals);
// this exists only so the binary is runnable and demonstrable on its own.
func printEvent(evt eventbus.Event) {
	switch evt.Kind {
	case eventbus.KindPhaseChanged:
		fmt.Printf("[session %d] phase -> %s\n", evt.SessionID, evt.Phase)
	case eventbus.KindReloadStarted:
		fmt.Printf("[session %d] reload started\n", evt.SessionID)
	case eventbus.KindReloadCompleted:
		fmt.Printf("[session %d] reloaded in %dms\n", evt.SessionID, evt.ReloadDurationMS)
	case eventbus.KindLogBatch:
		for _, entry := range evt.Entries {
			fmt.Printf("[session %d] %s %s: %s\n", evt.SessionID, entry.Level, entry.Source, entry.Message)
		}
	case eventbus.KindShutdown:
		fmt.Println("fdemon: shutting down")
	}
}
