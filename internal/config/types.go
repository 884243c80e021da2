// Package config resolves, parses, validates, and defaults inputagent configuration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the fully materialized runtime configuration.
type Config struct {
	Agent  AgentConfig
	Client ClientConfig
	ADB    ADBConfig
	Log    LogConfig
}

// AgentConfig controls where the agent listens and where clients connect.
type AgentConfig struct {
	Host string
	Port int
}

// ClientConfig controls controller-side session limits.
type ClientConfig struct {
	TimeoutMS     int
	MaxChunkBytes int
}

// ADBConfig controls the device automation backend.
type ADBConfig struct {
	Command        CommandConfig
	SwipeDefaultMS int
}

// LogConfig controls the runtime logger.
type LogConfig struct {
	Level string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Addr returns the agent host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Agent.Host, strconv.Itoa(c.Agent.Port))
}

// Timeout returns the client per-read timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Client.TimeoutMS) * time.Millisecond
}

// SwipeDefault returns the swipe duration used when a command omits one.
func (c Config) SwipeDefault() time.Duration {
	return time.Duration(c.ADB.SwipeDefaultMS) * time.Millisecond
}
