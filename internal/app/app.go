package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Javran/android-input-agent/internal/adb"
	"github.com/Javran/android-input-agent/internal/agent"
	"github.com/Javran/android-input-agent/internal/cli"
	"github.com/Javran/android-input-agent/internal/config"
	"github.com/Javran/android-input-agent/internal/doctor"
	"github.com/Javran/android-input-agent/internal/logging"
	"github.com/Javran/android-input-agent/internal/session"
	"github.com/Javran/android-input-agent/internal/version"
	"github.com/Javran/android-input-agent/internal/wire"
)

const defaultScreenshotPath = "screenshot.png"

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Backend replaces the adb backend for serve when set.
	Backend agent.Backend
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("inputagent"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("inputagent"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if parsed.PortSet {
		cfgLoaded.Config.Agent.Port = parsed.Port
	}

	logRuntime, err := logging.New(logging.Options{Level: cfgLoaded.Config.Log.Level})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
		"addr", cfgLoaded.Config.Addr(),
	)

	cfg := cfgLoaded.Config
	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandServe:
		return r.commandServe(ctx, cfg, logger)
	case cli.CommandVerify:
		return r.withSession(ctx, cfg, logger, func(s *session.Session) error {
			if err := s.Verify(ctx); err != nil {
				return err
			}
			fmt.Fprintf(r.Stdout, "%s at %s\n", wire.VersionString, s.Addr())
			return nil
		})
	case cli.CommandTap:
		return r.withSession(ctx, cfg, logger, func(s *session.Session) error {
			return s.Tap(ctx, parsed.Tap)
		})
	case cli.CommandSwipe:
		return r.withSession(ctx, cfg, logger, func(s *session.Session) error {
			duration := time.Duration(parsed.Swipe.DurationMS) * time.Millisecond
			return s.Swipe(ctx, parsed.Swipe.From, parsed.Swipe.To, duration)
		})
	case cli.CommandScreenshot:
		return r.withSession(ctx, cfg, logger, func(s *session.Session) error {
			return r.screenshot(ctx, s, parsed)
		})
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	listener, err := agent.Listen(ctx, cfg.Agent.Host, cfg.Agent.Port)
	if err != nil {
		if errors.Is(err, agent.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: an agent is already running on %s\n", cfg.Addr())
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	addr := net.JoinHostPort(cfg.Agent.Host, strconv.Itoa(agent.Port(listener)))
	fmt.Fprintf(r.Stdout, "listening on %s\n", addr)
	logger.Info("agent listening", "addr", addr)

	backend := r.Backend
	if backend == nil {
		backend = adb.New(adb.Options{Command: cfg.ADB.Command.Argv, Logger: logger})
	}
	dispatcher := agent.New(agent.Options{
		Backend:       backend,
		Logger:        logger,
		SwipeDuration: cfg.SwipeDefault(),
	})

	err = dispatcher.Serve(ctx, listener)
	switch {
	case errors.Is(err, agent.ErrTerminate):
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("agent terminating", "exit_code", agent.ExitCodeRestart)
		return agent.ExitCodeRestart
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("agent stopped", "error", err.Error())
		return 1
	default:
		logger.Info("agent stopped", "state", string(dispatcher.State()))
		return 0
	}
}

// withSession runs fn against a fresh session to the configured agent.
func (r Runner) withSession(ctx context.Context, cfg config.Config, logger *slog.Logger, fn func(*session.Session) error) int {
	if cfg.Agent.Port == 0 {
		fmt.Fprintf(r.Stderr, "error: agent port is not configured; use --port, %s, or agent.port\n", config.PortEnv)
		return 1
	}

	s := session.New(session.Options{
		Addr:          cfg.Addr(),
		Timeout:       cfg.Timeout(),
		MaxChunkBytes: cfg.Client.MaxChunkBytes,
		Logger:        logger,
	})
	defer func() { _ = s.Close() }()

	if err := fn(s); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("command failed", "addr", s.Addr(), "error", err.Error())
		return 1
	}
	return 0
}

func (r Runner) screenshot(ctx context.Context, s *session.Session, parsed cli.Parsed) error {
	out := parsed.OutPath
	if strings.TrimSpace(out) == "" {
		out = defaultScreenshotPath
	}

	var payloads [][]byte
	if len(parsed.Regions) == 0 {
		payload, err := s.ScreenshotAll(ctx)
		if err != nil {
			return err
		}
		payloads = [][]byte{payload}
	} else {
		var err error
		payloads, err = s.ScreenshotRects(ctx, parsed.Regions)
		if err != nil {
			return err
		}
	}

	for i, payload := range payloads {
		path := out
		if len(payloads) > 1 {
			path = indexedPath(out, i)
		}
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return fmt.Errorf("write screenshot: %w", err)
		}
		fmt.Fprintf(r.Stdout, "%s (%d bytes)\n", path, len(payload))
	}
	return nil
}

// indexedPath turns shot.png into shot-1.png for region 1.
func indexedPath(path string, index int) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + strconv.Itoa(index) + ext
}
