// Package session drives a remote input agent over its loopback connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Javran/android-input-agent/internal/wire"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultMaxChunkBytes = 64 << 20
)

var (
	// ErrVersionMismatch is returned by Verify when the peer is not a
	// compatible agent. The session is left connected.
	ErrVersionMismatch = fmt.Errorf("%w: unexpected agent version", wire.ErrProtocolViolation)

	// ErrCommandRejected means the agent answered invalid to a command this
	// session produced.
	ErrCommandRejected = fmt.Errorf("%w: agent rejected command", wire.ErrProtocolViolation)

	// ErrConnectionClosed means the agent closed the stream mid-response.
	ErrConnectionClosed = errors.New("session: agent closed the connection")

	ErrInvalidArgument = errors.New("session: invalid argument")
)

// Options configures a Session.
type Options struct {
	Addr          string
	Timeout       time.Duration
	MaxChunkBytes int
	Logger        *slog.Logger
}

// Session owns one logical connection to an agent and its unconsumed bytes.
// Calls are serialised; each blocks until its full response has been read.
type Session struct {
	addr          string
	timeout       time.Duration
	maxChunkBytes int
	logger        *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	source *deadlineReader
	reader *wire.Reader
	stale  bool
}

// New returns an unconnected Session. The connection is opened by the first
// command or by Connect.
func New(opts Options) *Session {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxChunk := opts.MaxChunkBytes
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunkBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Session{
		addr:          opts.Addr,
		timeout:       timeout,
		maxChunkBytes: maxChunk,
		logger:        logger,
		reader:        wire.NewReader(nil),
	}
}

// Addr returns the agent address.
func (s *Session) Addr() string {
	return s.addr
}

// Connected reports whether a connection is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Connect opens the connection if none is open.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

// Abort closes any open connection, ignoring close errors, and drops
// buffered bytes. Safe to call at any time.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked("abort requested")
}

// Close releases the connection without treating it as a failure.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reader.Reset(nil)
	s.stale = false
	if s.dropConnLocked() {
		s.logger.Debug("closed", "addr", s.addr)
	}
	return nil
}

// Verify checks that the peer speaks this protocol version.
func (s *Session) Verify(ctx context.Context) error {
	return s.do(ctx, wire.Version{}, func() error {
		line, err := s.readLine()
		if err != nil {
			return err
		}
		if line != wire.VersionString {
			return fmt.Errorf("%w: %q", ErrVersionMismatch, line)
		}
		return nil
	})
}

// Check sends the liveness no-op.
func (s *Session) Check(ctx context.Context) error {
	return s.do(ctx, wire.Check{}, s.expectOK)
}

// Tap touches at.
func (s *Session) Tap(ctx context.Context, at wire.Coord) error {
	if err := validCoord(at); err != nil {
		return err
	}
	return s.do(ctx, wire.Tap{At: at}, s.expectOK)
}

// Swipe drags from one coordinate to another. A zero duration uses the
// agent's default.
func (s *Session) Swipe(ctx context.Context, from, to wire.Coord, duration time.Duration) error {
	if err := validCoord(from); err != nil {
		return err
	}
	if err := validCoord(to); err != nil {
		return err
	}
	if duration < 0 {
		return fmt.Errorf("%w: negative swipe duration %s", ErrInvalidArgument, duration)
	}

	cmd := wire.Swipe{From: from, To: to}
	if duration > 0 {
		cmd.DurationMS = max(1, int(duration/time.Millisecond))
	}
	return s.do(ctx, cmd, s.expectOK)
}

// ScreenshotAll returns the full frame as one encoded image.
func (s *Session) ScreenshotAll(ctx context.Context) ([]byte, error) {
	var payloads [][]byte
	err := s.do(ctx, wire.ScreenshotAll{}, func() error {
		var err error
		payloads, err = s.recvChunks(1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payloads[0], nil
}

// ScreenshotRects returns one encoded image per region, aligned with regions.
func (s *Session) ScreenshotRects(ctx context.Context, regions []wire.Rect) ([][]byte, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: no regions", ErrInvalidArgument)
	}
	for i, r := range regions {
		if r.X < 0 || r.Y < 0 || r.W <= 0 || r.H <= 0 {
			return nil, fmt.Errorf("%w: region %d %+v", ErrInvalidArgument, i, r)
		}
	}

	cmd := wire.ScreenshotRects{Regions: append([]wire.Rect(nil), regions...)}
	var payloads [][]byte
	err := s.do(ctx, cmd, func() error {
		var err error
		payloads, err = s.recvChunks(len(regions))
		return err
	})
	if err != nil {
		return nil, err
	}
	return payloads, nil
}

// do runs one request/response cycle for cmd under the session lock.
func (s *Session) do(ctx context.Context, cmd wire.Command, recv func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(ctx); err != nil {
		return err
	}

	conn, source := s.conn, s.source
	source.ctx = ctx
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer func() {
		stop()
		source.ctx = nil
	}()

	started, readBefore := time.Now(), source.read
	line := wire.FormatCommand(cmd)

	if err := conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return s.fail(ctx, line, fmt.Errorf("set write deadline: %w", err))
	}
	if err := wire.WriteLine(conn, line); err != nil {
		return s.fail(ctx, line, fmt.Errorf("send command: %w", err))
	}
	if err := recv(); err != nil {
		return s.fail(ctx, line, err)
	}

	s.logger.Debug("command complete",
		"command", line,
		"duration_ms", time.Since(started).Milliseconds(),
		"chunks", wire.ChunkCount(cmd),
		"bytes", source.read-readBefore,
	)
	return nil
}

// fail classifies err: server failures and protocol violations abort the
// session now, transport errors leave it stale so the next command reconnects.
func (s *Session) fail(ctx context.Context, line string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}

	switch {
	case errors.Is(err, ErrVersionMismatch):
	case errors.Is(err, wire.ErrServerFailure), errors.Is(err, wire.ErrProtocolViolation):
		s.abortLocked(err.Error())
	default:
		s.stale = true
	}

	s.logger.Warn("command failed", "command", line, "error", err.Error())
	return fmt.Errorf("%s: %w", line, err)
}

func (s *Session) expectOK() error {
	line, err := s.readLine()
	if err != nil {
		return err
	}
	switch line {
	case wire.StatusOK:
		return nil
	case wire.StatusFailed:
		return wire.ErrServerFailure
	case wire.StatusInvalid:
		return ErrCommandRejected
	default:
		return fmt.Errorf("%w: unrecognized response %q", wire.ErrProtocolViolation, line)
	}
}

func (s *Session) recvChunks(count int) ([][]byte, error) {
	payloads := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		payload, err := wire.ReadChunk(s.reader, i, s.maxChunkBytes)
		if err != nil {
			return nil, s.streamErr(err)
		}
		payloads = append(payloads, payload)
	}
	if err := s.expectOK(); err != nil {
		return nil, err
	}
	return payloads, nil
}

func (s *Session) readLine() (string, error) {
	line, err := s.reader.ReadLine()
	if err != nil {
		return "", s.streamErr(err)
	}
	return line, nil
}

func (s *Session) streamErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return err
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.stale {
		s.abortLocked("previous command hit a transport error")
	}
	if s.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("connect agent %s: %w", s.addr, err)
	}

	s.conn = conn
	s.source = &deadlineReader{conn: conn, timeout: s.timeout}
	s.reader.Reset(s.source)
	s.logger.Debug("connected", "addr", s.addr)
	return nil
}

func (s *Session) abortLocked(reason string) {
	s.reader.Reset(nil)
	s.stale = false
	if s.dropConnLocked() {
		s.logger.Warn("session aborted", "addr", s.addr, "reason", reason)
	}
}

// dropConnLocked shuts down and closes the connection, swallowing errors from
// an already broken socket. It reports whether a connection was open.
func (s *Session) dropConnLocked() bool {
	if s.conn == nil {
		return false
	}
	if tcp, ok := s.conn.(*net.TCPConn); ok {
		_ = tcp.CloseRead()
		_ = tcp.CloseWrite()
	}
	_ = s.conn.Close()
	s.conn = nil
	s.source = nil
	return true
}

func validCoord(c wire.Coord) error {
	if c.X < 0 || c.Y < 0 {
		return fmt.Errorf("%w: coordinate %+v", ErrInvalidArgument, c)
	}
	return nil
}

// deadlineReader refreshes the read deadline before every receive so a
// silent agent times out per read, not per command.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
	ctx     context.Context
	read    int64
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.ctx != nil {
		if err := d.ctx.Err(); err != nil {
			return 0, err
		}
	}
	deadline := time.Now().Add(d.timeout)
	if d.ctx != nil {
		if ctxDeadline, ok := d.ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
	}
	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	// A cancel that fired before the deadline was set had its expired
	// deadline overwritten above.
	if d.ctx != nil {
		if err := d.ctx.Err(); err != nil {
			return 0, err
		}
	}
	n, err := d.conn.Read(p)
	d.read += int64(n)
	return n, err
}
