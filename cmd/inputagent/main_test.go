package main

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMainHelp(t *testing.T) {
	output, err := runMainSubprocess(t, "--help")
	require.NoError(t, err, string(output))
	require.Contains(t, string(output), "Usage:")
}

func TestMainVersion(t *testing.T) {
	output, err := runMainSubprocess(t, "version")
	require.NoError(t, err, string(output))
	require.Contains(t, string(output), "android_input_agent v0")
}

func TestMainInvalidCommandExitsWithUsageCode(t *testing.T) {
	output, err := runMainSubprocess(t, "not-a-command")
	require.Error(t, err)

	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok)
	require.Equal(t, 2, exitErr.ExitCode())
	require.Contains(t, string(output), "unknown command")
}

func TestMainClientWithoutPortExitsOne(t *testing.T) {
	output, err := runMainSubprocess(t, "--config", "/nonexistent/config.jsonc", "tap", "1", "2")
	require.Error(t, err)

	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok)
	require.Equal(t, 1, exitErr.ExitCode())
	require.Contains(t, string(output), "agent port is not configured")
}

func TestMainHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	dashIndex := -1
	for i, arg := range args {
		if arg == "--" {
			dashIndex = i
			break
		}
	}

	var forwarded []string
	if dashIndex >= 0 && dashIndex+1 < len(args) {
		forwarded = args[dashIndex+1:]
	}
	os.Exit(run(forwarded))
}

func runMainSubprocess(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()

	cmdArgs := []string{"-test.run=TestMainHelperProcess", "--"}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"XDG_STATE_HOME="+t.TempDir(),
		"INPUT_AGENT_PORT=",
	)
	return cmd.CombinedOutput()
}
