// Package settings loads fdemon's project-relative TOML configuration
// files. It mirrors the teacher's formula.Parser TOML-loading idiom
// (graceful missing-file fallback to defaults), but each file has one
// fixed location, <root>/.fdemon/<name>, with no search path list, and
// there is nothing to resolve or cache here: each file is read
// once per Loader call, and the loaded values are handed to the core
// as plain structs the core does not otherwise own.
package settings

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/flutter-demon/fdemon/internal/ferrors"
)

// ConfigFileName, LaunchFileName, and LocalFileName are the three
// TOML files a project's .fdemon directory may carry (§6).
const (
	ConfigFileName = "config.toml"
	LaunchFileName = "launch.toml"
	LocalFileName  = "settings.local.toml"
	settingsDir    = ".fdemon"
)

// Config is the project-wide settings file (.fdemon/config.toml).
type Config struct {
	FlutterBin      string   `toml:"flutter_bin"`
	AutoReload      bool     `toml:"auto_reload"`
	WatchPaths      []string `toml:"watch_paths"`
	WatchExtensions []string `toml:"watch_extensions"`
	DebounceMS      int64    `toml:"debounce_ms"`
	MaxLogs         int      `toml:"max_logs"`
}

// DefaultConfig is what a project with no config.toml gets.
func DefaultConfig() Config {
	return Config{
		FlutterBin:      "flutter",
		AutoReload:      false,
		WatchPaths:      []string{"lib"},
		WatchExtensions: []string{"dart"},
		DebounceMS:      500,
		MaxLogs:         10000,
	}
}

// LaunchEntry is one named launch configuration from launch.toml.
type LaunchEntry struct {
	Name       string   `toml:"name"`
	Flags      []string `toml:"flags"`
	WorkingDir string   `toml:"working_dir"`
}

// LaunchFile is the parsed contents of .fdemon/launch.toml: a set of
// named, reusable launch configurations a session can be started with.
type LaunchFile struct {
	Configs []LaunchEntry `toml:"configs"`
}

// ByName returns the launch entry with the given name, if present.
func (f LaunchFile) ByName(name string) (LaunchEntry, bool) {
	for _, c := range f.Configs {
		if c.Name == name {
			return c, true
		}
	}
	return LaunchEntry{}, false
}

// LocalSettings is the gitignore-friendly, per-user preferences file
// (.fdemon/settings.local.toml): things that should survive between
// runs but never be committed or shared (§6, supplemented over §9's
// "remember last selection" open question).
type LocalSettings struct {
	LastDeviceID     string `toml:"last_device_id"`
	LastLaunchConfig string `toml:"last_launch_config"`
}

// Loader reads fdemon's TOML configuration from a project root,
// falling back to documented defaults when a file is absent.
type Loader struct {
	projectRoot string
}

// NewLoader returns a Loader rooted at projectRoot's .fdemon directory.
func NewLoader(projectRoot string) *Loader {
	return &Loader{projectRoot: projectRoot}
}

func (l *Loader) path(name string) string {
	return filepath.Join(l.projectRoot, settingsDir, name)
}

// LoadConfig reads config.toml, or returns DefaultConfig() if the file
// does not exist. A malformed (present but unparseable) file is a
// ferrors.KindConfigParse error, since that indicates user error worth
// surfacing rather than silently falling back.
func (l *Loader) LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := l.path(ConfigFileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, ferrors.ConfigParse(path, err)
	}
	return cfg, nil
}

// LoadLaunchFile reads launch.toml, or returns an empty LaunchFile if
// the file does not exist.
func (l *Loader) LoadLaunchFile() (LaunchFile, error) {
	var file LaunchFile
	path := l.path(LaunchFileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return file, nil
	}

	if _, err := toml.DecodeFile(path, &file); err != nil {
		return LaunchFile{}, ferrors.ConfigParse(path, err)
	}
	return file, nil
}

// LoadLocalSettings reads settings.local.toml, or returns a zero-value
// LocalSettings if the file does not exist. Missing or malformed local
// settings never block startup: this file is pure convenience state.
func (l *Loader) LoadLocalSettings() LocalSettings {
	var local LocalSettings
	path := l.path(LocalFileName)

	if _, err := toml.DecodeFile(path, &local); err != nil {
		return LocalSettings{}
	}
	return local
}

// SaveLocalSettings writes settings.local.toml, creating the .fdemon
// directory if necessary. Used by the auto-save-config Action (§4.G)
// after a session's device or launch config selection changes.
func (l *Loader) SaveLocalSettings(local LocalSettings) error {
	dir := filepath.Join(l.projectRoot, settingsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindIO, "creating .fdemon directory", err)
	}

	path := l.path(LocalFileName)
	f, err := os.Create(path)
	if err != nil {
		return ferrors.ConfigRead(path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(local); err != nil {
		return ferrors.ConfigParse(path, err)
	}
	return nil
}
