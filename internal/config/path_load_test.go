package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "inputagent", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "inputagent", "config.jsonc"), resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	t.Setenv(PortEnv, "")
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingJSONCParsesAndValidates(t *testing.T) {
	t.Setenv(PortEnv, "")
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  // emulator on a fixed port
  "agent": {
    "port": 9712,
  },
  "adb": {
    "command": "adb -s emulator-5554",
  },
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, 9712, loaded.Config.Agent.Port)
	require.Equal(t, "127.0.0.1:9712", loaded.Config.Addr())
	require.Equal(t, []string{"adb", "-s", "emulator-5554"}, loaded.Config.ADB.Command.Argv)
}

func TestLoadPortEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"agent": {"port": 9712}}`), 0o600))

	t.Setenv(PortEnv, "4242")
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4242, loaded.Config.Agent.Port)

	t.Setenv(PortEnv, "not-a-port")
	_, err = Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), PortEnv)

	t.Setenv(PortEnv, "70000")
	_, err = Load(path)
	require.Error(t, err)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}
