package config

import (
	"fmt"
	"net"
	"strings"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	host := strings.TrimSpace(cfg.Agent.Host)
	if host == "" {
		return nil, fmt.Errorf("agent.host must not be empty")
	}
	if !IsLoopback(host) {
		return nil, fmt.Errorf("agent.host must be a loopback address, got %q", host)
	}
	if cfg.Agent.Port < 0 || cfg.Agent.Port > 65535 {
		return nil, fmt.Errorf("agent.port must be in 0..65535")
	}
	if cfg.Client.TimeoutMS <= 0 {
		return nil, fmt.Errorf("client.timeout_ms must be > 0")
	}
	if cfg.Client.MaxChunkBytes <= 0 {
		return nil, fmt.Errorf("client.max_chunk_bytes must be > 0")
	}
	if len(cfg.ADB.Command.Argv) == 0 {
		return nil, fmt.Errorf("adb.command must not be empty")
	}
	if cfg.ADB.SwipeDefaultMS <= 0 {
		return nil, fmt.Errorf("adb.swipe_default_ms must be > 0")
	}
	if !logLevels[cfg.Log.Level] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	if cfg.Client.TimeoutMS < 500 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("client.timeout_ms=%d is shorter than a typical screencap", cfg.Client.TimeoutMS)})
	}
	if cfg.ADB.SwipeDefaultMS < 50 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("adb.swipe_default_ms=%d may register as a tap", cfg.ADB.SwipeDefaultMS)})
	}

	return warnings, nil
}

// IsLoopback reports whether host names a loopback interface. It is the single
// check shared by config validation and the agent listener.
func IsLoopback(host string) bool {
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
