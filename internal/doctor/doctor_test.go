package doctor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Javran/android-input-agent/internal/config"
	"github.com/Javran/android-input-agent/internal/wire"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "adb.command")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckDeviceState(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		wantPass bool
		wantMsg  string
	}{
		{name: "attached", script: "echo device", wantPass: true, wantMsg: "attached"},
		{name: "unauthorized", script: "echo unauthorized", wantMsg: "unauthorized"},
		{name: "adb error", script: "echo 'error: no devices/emulators found' >&2; exit 1", wantMsg: "no devices"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			installFakeAdb(t, tc.script)

			check := checkDeviceState(context.Background(), config.Default())
			require.Equal(t, tc.wantPass, check.Pass)
			require.Contains(t, check.Message, tc.wantMsg)
		})
	}
}

func TestCheckAgentSkipsWithoutPort(t *testing.T) {
	check := checkAgent(context.Background(), config.Default())
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "probe skipped")
}

func TestCheckAgentNotRunning(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := config.Default()
	cfg.Agent.Port = port
	check := checkAgent(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "no agent listening")
}

func TestCheckAgentAnswering(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := wire.NewReader(conn)
		if _, err := r.ReadLine(); err == nil {
			_ = wire.WriteLine(conn, wire.VersionString)
		}
	}()

	cfg := config.Default()
	cfg.Agent.Port = listener.Addr().(*net.TCPAddr).Port
	check := checkAgent(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "answering at")
}

func TestRunSkipsDeviceWhenAdbMissing(t *testing.T) {
	cfg := config.Default()
	cfg.ADB.Command = config.CommandConfig{Raw: "definitely-not-adb", Argv: []string{"definitely-not-adb"}}

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})
	require.False(t, report.OK())

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "definitely-not-adb", "agent"}, names)
	require.Contains(t, report.Checks[0].Message, "not found; using defaults")
}

func TestRunAllPassingWithFakeAdb(t *testing.T) {
	installFakeAdb(t, "echo device")

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: config.Default(), Exists: true})
	require.True(t, report.OK(), report.String())
	require.Len(t, report.Checks, 4)
}

func installFakeAdb(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "adb")
	require.NoError(t, os.WriteFile(path, []byte("#!/usr/bin/env bash\n"+body+"\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
