package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PortEnv overrides agent.port when set.
const PortEnv = "INPUT_AGENT_PORT"

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration, then
// applies environment overrides.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Config: Default()}
	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		}}
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		cfg, warnings, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
		loaded.Config = cfg
		loaded.Warnings = warnings
		loaded.Exists = true
	}

	if err := applyEnv(&loaded.Config); err != nil {
		return Loaded{}, err
	}
	return loaded, nil
}

func applyEnv(cfg *Config) error {
	raw, ok := os.LookupEnv(PortEnv)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("%s must be a port number in 0..65535, got %q", PortEnv, raw)
	}
	cfg.Agent.Port = port
	return nil
}
