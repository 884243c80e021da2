package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Javran/android-input-agent/internal/config"
	"github.com/Javran/android-input-agent/internal/session"
)

// existingAgentTimeout bounds the version exchange with whatever holds the port.
const existingAgentTimeout = 250 * time.Millisecond

var (
	ErrAlreadyRunning = errors.New("input agent already running")
	ErrNotLoopback    = errors.New("agent must bind a loopback address")
)

// Listen binds the agent's loopback TCP listener. Port 0 lets the OS choose.
func Listen(ctx context.Context, host string, port int) (net.Listener, error) {
	if !config.IsLoopback(host) {
		return nil, fmt.Errorf("%w: %q", ErrNotLoopback, host)
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err == nil {
		return listener, nil
	}
	if !isAddrInUse(err) {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	alive, probeErr := Probe(ctx, addr, existingAgentTimeout)
	if alive {
		return nil, ErrAlreadyRunning
	}
	if isTimeout(probeErr) {
		// The port is taken and the holder did not refuse us; an agent busy
		// with another controller answers only after that connection ends.
		return nil, fmt.Errorf("%w: %s accepted a connection but did not answer within %s", ErrAlreadyRunning, addr, existingAgentTimeout)
	}
	if probeErr != nil {
		return nil, fmt.Errorf("probe existing listener %s: %w", addr, probeErr)
	}
	return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
}

// Port returns the TCP port a listener is bound to.
func Port(listener net.Listener) int {
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Probe checks whether an agent currently answers on addr.
func Probe(ctx context.Context, addr string, timeout time.Duration) (bool, error) {
	s := session.New(session.Options{Addr: addr, Timeout: timeout})
	defer s.Close()

	err := s.Verify(ctx)
	if err == nil {
		return true, nil
	}
	if isConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe agent: %w", err)
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use")
}
