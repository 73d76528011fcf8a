package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flutter-demon/fdemon/internal/discovery"
	"github.com/flutter-demon/fdemon/internal/settings"
)

// Status constants for doctor checks, mirrored from the teacher's
// ok/warning/error trio.
const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

type doctorCheck struct {
	Name    string
	Status  string
	Message string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor [path]",
	Short: "Check a Flutter project's fdemon readiness",
	Long: `Sanity check a project for running under fdemon:

  - pubspec.yaml present (a Flutter project)
  - .fdemon/config.toml parses, if present
  - the configured flutter binary is on PATH
  - at least one device or emulator is reachable

This is read-only: it never spawns a Flutter process or mutates
project state.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		checkPath := "."
		if len(args) > 0 {
			checkPath = args[0]
		}
		root, err := filepath.Abs(checkPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fdemon doctor: %v\n", err)
			os.Exit(1)
		}

		checks := runDoctorChecks(cmd.Context(), root)
		overallOK := true
		for _, c := range checks {
			symbol := "✓"
			if c.Status == statusWarning {
				symbol = "!"
			} else if c.Status == statusError {
				symbol = "✗"
				overallOK = false
			}
			fmt.Printf("[%s] %-28s %s\n", symbol, c.Name, c.Message)
		}
		if !overallOK {
			os.Exit(1)
		}
	},
}

func runDoctorChecks(ctx context.Context, root string) []doctorCheck {
	var checks []doctorCheck

	if _, err := os.Stat(filepath.Join(root, "pubspec.yaml")); err != nil {
		checks = append(checks, doctorCheck{"flutter project", statusError, "pubspec.yaml not found at " + root})
		return checks
	}
	checks = append(checks, doctorCheck{"flutter project", statusOK, root})

	cfg, err := settings.NewLoader(root).LoadConfig()
	if err != nil {
		checks = append(checks, doctorCheck{"config.toml", statusError, err.Error()})
		return checks
	}
	checks = append(checks, doctorCheck{"config.toml", statusOK, "parsed"})

	if path, err := exec.LookPath(cfg.FlutterBin); err != nil {
		checks = append(checks, doctorCheck{"flutter binary", statusError, cfg.FlutterBin + " not found on PATH"})
	} else {
		checks = append(checks, doctorCheck{"flutter binary", statusOK, path})
	}

	devices, err := discovery.DiscoverDevices(ctx)
	switch {
	case err != nil:
		checks = append(checks, doctorCheck{"devices", statusError, err.Error()})
	case len(devices) == 0:
		checks = append(checks, doctorCheck{"devices", statusWarning, "no connected devices or running emulators"})
	default:
		checks = append(checks, doctorCheck{"devices", statusOK, fmt.Sprintf("%d found", len(devices))})
	}

	return checks
}
