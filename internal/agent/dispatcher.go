// Package agent serves the input agent protocol to one controller at a time.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/Javran/android-input-agent/internal/fsm"
	"github.com/Javran/android-input-agent/internal/wire"
)

// ExitCodeRestart is the process exit status asking a supervisor to restart
// the agent after a backend failure.
const ExitCodeRestart = 6

// DefaultSwipeDuration applies to swipe commands without an explicit duration.
const DefaultSwipeDuration = 300 * time.Millisecond

var (
	// ErrTerminate is returned by Serve once a backend failure leaves the
	// device state untrusted.
	ErrTerminate = errors.New("agent: backend failure, restart required")

	ErrBackend = errors.New("agent: backend call failed")
)

// Options configures a Dispatcher.
type Options struct {
	Backend       Backend
	Logger        *slog.Logger
	SwipeDuration time.Duration
}

// Dispatcher owns the accept loop and per-connection command handling.
type Dispatcher struct {
	backend       Backend
	logger        *slog.Logger
	swipeDuration time.Duration

	state     fsm.State
	terminate bool
}

// transportError marks a failed write to the peer, as opposed to a backend failure.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "write response: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// New builds a Dispatcher in the listening state.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	swipe := opts.SwipeDuration
	if swipe <= 0 {
		swipe = DefaultSwipeDuration
	}
	return &Dispatcher{
		backend:       opts.Backend,
		logger:        logger,
		swipeDuration: swipe,
		state:         fsm.StateListening,
	}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() fsm.State {
	return d.state
}

// Serve accepts connections one at a time until ctx is cancelled (nil), the
// listener fails, or a backend failure occurs (ErrTerminate).
func (d *Dispatcher) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	for !fsm.Terminal(d.state) {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				d.transition(fsm.EventShutdown)
				return nil
			}
			return fmt.Errorf("accept agent connection: %w", err)
		}

		d.transition(fsm.EventAccept)
		d.logger.Info("controller connected", "remote", conn.RemoteAddr().String())
		d.serveConn(ctx, conn)
	}

	_ = listener.Close()
	if d.terminate {
		return ErrTerminate
	}
	return nil
}

// serveConn runs the dispatch loop for one connection and closes it.
func (d *Dispatcher) serveConn(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	reader := wire.NewReader(conn)
	reader.AcceptUnterminated = true
	writer := bufio.NewWriter(conn)

	event := fsm.EventHangup
	for {
		line, err := reader.ReadLine()
		if errors.Is(err, wire.ErrLineTooLong) {
			d.logger.Warn("invalid command", "error", err.Error())
			if err := writeStatus(writer, wire.StatusInvalid); err != nil {
				d.logger.Warn("connection write failed", "error", err.Error())
				break
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				d.logger.Warn("read command failed", "error", err.Error())
			}
			break
		}

		failed, err := d.handle(ctx, writer, line)
		if err != nil {
			d.logger.Warn("connection write failed", "error", err.Error())
			break
		}
		if failed {
			d.terminate = true
			event = fsm.EventFail
			break
		}
	}

	if ctx.Err() != nil && !d.terminate {
		event = fsm.EventShutdown
	}
	d.transition(event)

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		d.logger.Debug("close connection", "error", err.Error())
	}
	d.logger.Info("controller disconnected", "terminate", d.terminate)

	if event != fsm.EventShutdown {
		d.transition(fsm.EventClosed)
	}
}

// handle processes one request line and writes its complete response. It
// reports whether the command failed; a non-nil error means the peer is gone.
func (d *Dispatcher) handle(ctx context.Context, w *bufio.Writer, line string) (bool, error) {
	cmd, err := wire.ParseCommand(line)
	if err != nil {
		d.logger.Warn("invalid command", "line", line)
		return false, writeStatus(w, wire.StatusInvalid)
	}

	switch cmd.(type) {
	case wire.Version:
		return false, writeStatus(w, wire.VersionString)
	case wire.Check:
		return false, writeStatus(w, wire.StatusOK)
	}

	started := time.Now()
	diag, err := d.invoke(ctx, w, cmd)

	var werr *transportError
	if errors.As(err, &werr) {
		return false, werr
	}

	status := wire.StatusOK
	fields := []any{
		"command", wire.FormatCommand(cmd),
		"duration_ms", time.Since(started).Milliseconds(),
	}
	if diag.Message != "" {
		fields = append(fields, "backend_message", diag.Message)
	}
	switch {
	case err != nil:
		status = wire.StatusFailed
		d.logger.Error("command failed", append(fields, "error", err.Error())...)
	case diag.LoggedError:
		status = wire.StatusFailed
		d.logger.Error("command failed", append(fields, "error", "backend reported an error")...)
	default:
		d.logger.Info("command ok", fields...)
	}

	if err := writeStatus(w, status); err != nil {
		return false, err
	}
	return status == wire.StatusFailed, nil
}

// invoke calls the backend for cmd, converting panics into errors.
func (d *Dispatcher) invoke(ctx context.Context, w io.Writer, cmd wire.Command) (diag Diagnostics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrBackend, r)
		}
	}()

	switch c := cmd.(type) {
	case wire.Tap:
		return wrapBackend(d.backend.Tap(ctx, c.At))
	case wire.Swipe:
		duration := d.swipeDuration
		if c.DurationMS > 0 {
			duration = time.Duration(c.DurationMS) * time.Millisecond
		}
		return wrapBackend(d.backend.Drag(ctx, c.From, c.To, duration))
	case wire.ScreenshotAll:
		return d.screenshot(ctx, w, nil)
	case wire.ScreenshotRects:
		return d.screenshot(ctx, w, c.Regions)
	default:
		return Diagnostics{}, fmt.Errorf("unsupported command %q", cmd.Keyword())
	}
}

// screenshot captures one frame and streams one chunk per region. A nil
// regions slice sends the whole frame as chunk 0.
func (d *Dispatcher) screenshot(ctx context.Context, w io.Writer, regions []wire.Rect) (Diagnostics, error) {
	base, diag, err := d.backend.Capture(ctx)
	if err != nil {
		return diag, fmt.Errorf("%w: capture: %w", ErrBackend, err)
	}

	if regions == nil {
		payload, encDiag, err := d.backend.Encode(base)
		diag = diag.Merge(encDiag)
		if err != nil {
			return diag, fmt.Errorf("%w: encode: %w", ErrBackend, err)
		}
		if err := wire.WriteChunk(w, 0, payload); err != nil {
			return diag, &transportError{err: err}
		}
		return diag, nil
	}

	for i, region := range regions {
		cropped, cropDiag, err := d.backend.Crop(base, region)
		diag = diag.Merge(cropDiag)
		if err != nil {
			return diag, fmt.Errorf("%w: crop region %d: %w", ErrBackend, i, err)
		}
		payload, encDiag, err := d.backend.Encode(cropped)
		diag = diag.Merge(encDiag)
		if err != nil {
			return diag, fmt.Errorf("%w: encode region %d: %w", ErrBackend, i, err)
		}
		if err := wire.WriteChunk(w, i, payload); err != nil {
			return diag, &transportError{err: err}
		}
	}
	return diag, nil
}

func (d *Dispatcher) transition(event fsm.Event) {
	next, err := fsm.Transition(d.state, event)
	if err != nil {
		d.logger.Error("lifecycle transition rejected", "state", string(d.state), "event", string(event), "error", err.Error())
		return
	}
	d.logger.Debug("lifecycle transition", "from", string(d.state), "event", string(event), "to", string(next))
	d.state = next
}

func wrapBackend(diag Diagnostics, err error) (Diagnostics, error) {
	if err != nil {
		return diag, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return diag, nil
}

func writeStatus(w *bufio.Writer, line string) error {
	if err := wire.WriteLine(w, line); err != nil {
		return &transportError{err: err}
	}
	if err := w.Flush(); err != nil {
		return &transportError{err: err}
	}
	return nil
}
