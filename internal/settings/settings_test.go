package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flutter-demon/fdemon/internal/ferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoadConfigFallsBackToDefaultsWhenFileAbsent(t *testing.T) {
	loader := NewLoader(t.TempDir())
	cfg, err := loader.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigParsesPresentFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, settingsDir), ConfigFileName, `
flutter_bin = "/opt/flutter/bin/flutter"
auto_reload = true
watch_paths = ["lib", "test"]
watch_extensions = ["dart"]
debounce_ms = 750
max_logs = 5000
`)

	cfg, err := NewLoader(root).LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/opt/flutter/bin/flutter", cfg.FlutterBin)
	assert.True(t, cfg.AutoReload)
	assert.Equal(t, []string{"lib", "test"}, cfg.WatchPaths)
	assert.Equal(t, int64(750), cfg.DebounceMS)
	assert.Equal(t, 5000, cfg.MaxLogs)
}

func TestLoadConfigMalformedFileReturnsConfigParseError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, settingsDir), ConfigFileName, "not = [valid toml")

	_, err := NewLoader(root).LoadConfig()
	require.Error(t, err)
	var fdErr *ferrors.Error
	require.ErrorAs(t, err, &fdErr)
	assert.Equal(t, ferrors.KindConfigParse, fdErr.Kind)
}

func TestLoadLaunchFileByName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, settingsDir), LaunchFileName, `
[[configs]]
name = "dev"
flags = ["--flavor", "dev"]
working_dir = "app"

[[configs]]
name = "prod"
flags = ["--flavor", "prod", "--release"]
`)

	file, err := NewLoader(root).LoadLaunchFile()
	require.NoError(t, err)
	require.Len(t, file.Configs, 2)

	entry, ok := file.ByName("prod")
	require.True(t, ok)
	assert.Equal(t, []string{"--flavor", "prod", "--release"}, entry.Flags)

	_, ok = file.ByName("missing")
	assert.False(t, ok)
}

func TestLoadLaunchFileAbsentReturnsEmpty(t *testing.T) {
	file, err := NewLoader(t.TempDir()).LoadLaunchFile()
	require.NoError(t, err)
	assert.Empty(t, file.Configs)
}

func TestLocalSettingsRoundTrip(t *testing.T) {
	root := t.TempDir()
	loader := NewLoader(root)

	want := LocalSettings{LastDeviceID: "emulator-5554", LastLaunchConfig: "dev"}
	require.NoError(t, loader.SaveLocalSettings(want))

	got := loader.LoadLocalSettings()
	assert.Equal(t, want, got)
}

func TestLoadLocalSettingsAbsentReturnsZeroValue(t *testing.T) {
	got := NewLoader(t.TempDir()).LoadLocalSettings()
	assert.Equal(t, LocalSettings{}, got)
}
