// Package doctor runs runtime readiness diagnostics for config, adb, the device, and the agent.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Javran/android-input-agent/internal/adb"
	"github.com/Javran/android-input-agent/internal/agent"
	"github.com/Javran/android-input-agent/internal/config"
)

const deviceStateTimeout = 5 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	adbCheck := checkCommand(cfg.Config.ADB.Command.Argv, "adb.command")
	checks = append(checks, adbCheck)
	if adbCheck.Pass {
		checks = append(checks, checkDeviceState(ctx, cfg.Config))
	}

	checks = append(checks, checkAgent(ctx, cfg.Config))

	return Report{Checks: checks}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkDeviceState asks adb whether the target device is attached and authorized.
func checkDeviceState(ctx context.Context, cfg config.Config) Check {
	ctx, cancel := context.WithTimeout(ctx, deviceStateTimeout)
	defer cancel()

	state, err := adb.New(adb.Options{Command: cfg.ADB.Command.Argv}).State(ctx)
	if err != nil {
		return Check{Name: "device", Pass: false, Message: err.Error()}
	}
	if state != "device" {
		return Check{Name: "device", Pass: false, Message: fmt.Sprintf("state %q, expected \"device\"", state)}
	}
	return Check{Name: "device", Pass: true, Message: "attached"}
}

// checkAgent probes the configured agent address. An absent agent is not a
// failure; a peer that answers with something else is.
func checkAgent(ctx context.Context, cfg config.Config) Check {
	if cfg.Agent.Port == 0 {
		return Check{Name: "agent", Pass: true, Message: "agent.port is 0; probe skipped"}
	}

	addr := cfg.Addr()
	alive, err := agent.Probe(ctx, addr, cfg.Timeout())
	if err != nil {
		return Check{Name: "agent", Pass: false, Message: err.Error()}
	}
	if !alive {
		return Check{Name: "agent", Pass: true, Message: fmt.Sprintf("no agent listening on %s", addr)}
	}
	return Check{Name: "agent", Pass: true, Message: fmt.Sprintf("answering at %s", addr)}
}
