// Package discovery shells out to the Flutter and Xcode tooling to
// enumerate connected devices, available emulators, and iOS
// simulators, tolerating the prologue/epilogue text these tools print
// around their JSON payload.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/flutter-demon/fdemon/internal/fdebug"
	"github.com/flutter-demon/fdemon/internal/types"
)

const (
	discoveryTimeout     = 30 * time.Second
	emulatorLaunchTimeout = 120 * time.Second
	simulatorBootTimeout  = 60 * time.Second
	simulatorPollInterval = 500 * time.Millisecond
)

// runJSON runs name with args under a deadline and extracts the first
// top-level JSON array found anywhere in stdout, tolerating any
// prologue/epilogue lines the tool prints around it.
func runJSON(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("discovery: %s %v timed out after %s", name, args, timeout)
		}
		return nil, fmt.Errorf("discovery: running %s %v: %w", name, args, err)
	}

	arr, err := extractJSONArray(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return arr, nil
}

func extractJSONArray(output []byte) ([]byte, error) {
	start := bytes.IndexByte(output, '[')
	if start < 0 {
		return nil, fmt.Errorf("discovery: no JSON array found in output")
	}
	depth := 0
	for i := start; i < len(output); i++ {
		switch output[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return output[start : i+1], nil
			}
		}
	}
	return nil, fmt.Errorf("discovery: unterminated JSON array in output")
}

type machineDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Emulator bool   `json:"emulator"`
}

// DiscoverDevices runs `flutter devices --machine`.
func DiscoverDevices(ctx context.Context) ([]types.DeviceIdentity, error) {
	raw, err := runJSON(ctx, discoveryTimeout, "flutter", "devices", "--machine")
	if err != nil {
		return nil, err
	}
	var devices []machineDevice
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("discovery: parsing flutter devices output: %w", err)
	}
	out := make([]types.DeviceIdentity, 0, len(devices))
	for _, d := range devices {
		out = append(out, types.DeviceIdentity{ID: d.ID, Name: d.Name, Platform: d.Platform, Emulator: d.Emulator})
	}
	return out, nil
}

// Emulator is a launchable (not currently running) emulator image.
type Emulator struct {
	ID       string
	Name     string
	Platform string
}

type machineEmulator struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

// DiscoverEmulators runs `flutter emulators --machine`.
func DiscoverEmulators(ctx context.Context) ([]Emulator, error) {
	raw, err := runJSON(ctx, discoveryTimeout, "flutter", "emulators", "--machine")
	if err != nil {
		return nil, err
	}
	var emulators []machineEmulator
	if err := json.Unmarshal(raw, &emulators); err != nil {
		return nil, fmt.Errorf("discovery: parsing flutter emulators output: %w", err)
	}
	out := make([]Emulator, 0, len(emulators))
	for _, e := range emulators {
		out = append(out, Emulator{ID: e.ID, Name: e.Name, Platform: e.Platform})
	}
	return out, nil
}

// LaunchEmulator runs `flutter emulators --launch <id> [--cold]`,
// bounded by a 120s timeout.
func LaunchEmulator(ctx context.Context, id string, cold bool) error {
	ctx, cancel := context.WithTimeout(ctx, emulatorLaunchTimeout)
	defer cancel()

	args := []string{"emulators", "--launch", id}
	if cold {
		args = append(args, "--cold")
	}
	cmd := exec.CommandContext(ctx, "flutter", args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("discovery: launching emulator %s timed out after %s", id, emulatorLaunchTimeout)
		}
		return fmt.Errorf("discovery: launching emulator %s: %w", id, err)
	}
	return nil
}

// Simulator is one iOS Simulator device from `xcrun simctl list`.
type Simulator struct {
	UDID    string
	Name    string
	State   string // "Booted", "Shutdown", ...
	Runtime string // decoded as "iOS X.Y"
}

func (s Simulator) IsBooted() bool {
	return s.State == "Booted"
}

type simctlDevice struct {
	UDID  string `json:"udid"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type simctlList struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

var runtimeVersionRe = regexp.MustCompile(`com\.apple\.CoreSimulator\.SimRuntime\.iOS-(\d+)-(\d+)`)

func decodeRuntime(identifier string) string {
	m := runtimeVersionRe.FindStringSubmatch(identifier)
	if m == nil {
		return identifier
	}
	return fmt.Sprintf("iOS %s.%s", m[1], m[2])
}

// DiscoverSimulators runs `xcrun simctl list devices -j` and groups
// results by decoded runtime identifier.
func DiscoverSimulators(ctx context.Context) ([]Simulator, error) {
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "xcrun", "simctl", "list", "devices", "-j")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("discovery: running xcrun simctl list: %w", err)
	}

	var parsed simctlList
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &parsed); err != nil {
		return nil, fmt.Errorf("discovery: parsing simctl output: %w", err)
	}

	var out []Simulator
	for runtimeID, devices := range parsed.Devices {
		runtime := decodeRuntime(runtimeID)
		for _, d := range devices {
			out = append(out, Simulator{UDID: d.UDID, Name: d.Name, State: d.State, Runtime: runtime})
		}
	}
	return out, nil
}

// BootSimulator boots the simulator with the given udid if it is not
// already booted, waits until `xcrun simctl list` reports it Booted,
// then opens the Simulator app. Bounded by a 60s timeout.
func BootSimulator(ctx context.Context, udid string) error {
	sims, err := DiscoverSimulators(ctx)
	if err != nil {
		return err
	}
	for _, s := range sims {
		if s.UDID == udid && s.IsBooted() {
			return nil // early-out: already booted
		}
	}

	ctx, cancel := context.WithTimeout(ctx, simulatorBootTimeout)
	defer cancel()

	bootCmd := exec.CommandContext(ctx, "xcrun", "simctl", "boot", udid)
	if err := bootCmd.Run(); err != nil {
		return fmt.Errorf("discovery: booting simulator %s: %w", udid, err)
	}

	ticker := time.NewTicker(simulatorPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("discovery: timed out waiting for simulator %s to boot", udid)
		case <-ticker.C:
			sims, err := DiscoverSimulators(ctx)
			if err != nil {
				fdebug.Logf("discovery: poll during boot failed: %v", err)
				continue
			}
			for _, s := range sims {
				if s.UDID == udid && s.IsBooted() {
					return openSimulatorApp(ctx)
				}
			}
		}
	}
}

func openSimulatorApp(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "open", "-a", "Simulator")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("discovery: opening Simulator app: %w", err)
	}
	return nil
}
