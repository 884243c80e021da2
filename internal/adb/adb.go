// Package adb drives an Android device through the adb command line.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Javran/android-input-agent/internal/agent"
	"github.com/Javran/android-input-agent/internal/wire"
)

// DefaultCommand is used when no adb argv is configured.
var DefaultCommand = []string{"adb"}

var ErrRegionOutOfBounds = errors.New("adb: region outside captured frame")

// Options configures a Device.
type Options struct {
	// Command is the adb argv prefix, e.g. ["adb", "-s", "emulator-5554"].
	Command []string
	Logger  *slog.Logger
}

// Device implements agent.Backend on top of adb.
type Device struct {
	argv   []string
	logger *slog.Logger
}

var _ agent.Backend = (*Device)(nil)

// New returns a Device using opts.
func New(opts Options) *Device {
	argv := opts.Command
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Device{argv: append([]string(nil), argv...), logger: logger}
}

// Binary returns the adb executable name.
func (d *Device) Binary() string {
	return d.argv[0]
}

// Tap sends a single touch at the given screen coordinate.
func (d *Device) Tap(ctx context.Context, at wire.Coord) (agent.Diagnostics, error) {
	out, err := d.run(ctx, "shell", "input", "tap", strconv.Itoa(at.X), strconv.Itoa(at.Y))
	return inspect(out), err
}

// Drag performs a swipe gesture lasting duration.
func (d *Device) Drag(ctx context.Context, from, to wire.Coord, duration time.Duration) (agent.Diagnostics, error) {
	ms := max(1, duration.Milliseconds())
	out, err := d.run(ctx,
		"shell", "input", "swipe",
		strconv.Itoa(from.X), strconv.Itoa(from.Y),
		strconv.Itoa(to.X), strconv.Itoa(to.Y),
		strconv.FormatInt(ms, 10),
	)
	return inspect(out), err
}

// Capture grabs the current screen as a decoded image.
func (d *Device) Capture(ctx context.Context) (image.Image, agent.Diagnostics, error) {
	stdout, stderr, err := d.runSplit(ctx, "exec-out", "screencap", "-p")
	diag := inspect(stderr)
	if err != nil {
		return nil, diag, err
	}
	img, err := png.Decode(bytes.NewReader(stdout))
	if err != nil {
		return nil, diag, fmt.Errorf("decode screencap png (%d bytes): %w", len(stdout), err)
	}
	return img, diag, nil
}

// Crop returns the region of img addressed in frame coordinates.
func (d *Device) Crop(img image.Image, region wire.Rect) (image.Image, agent.Diagnostics, error) {
	bounds := img.Bounds()
	rect := image.Rect(region.X, region.Y, region.X+region.W, region.Y+region.H).Add(bounds.Min)
	if rect.Empty() || !rect.In(bounds) {
		return nil, agent.Diagnostics{}, fmt.Errorf("%w: %v not in %v", ErrRegionOutOfBounds, rect, bounds)
	}

	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return nil, agent.Diagnostics{}, fmt.Errorf("crop: image type %T does not support sub-images", img)
	}
	return sub.SubImage(rect), agent.Diagnostics{}, nil
}

// Encode renders img as PNG.
func (d *Device) Encode(img image.Image) ([]byte, agent.Diagnostics, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, agent.Diagnostics{}, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), agent.Diagnostics{}, nil
}

// State reports the adb connection state of the target device (for example
// "device", "offline" or "unauthorized").
func (d *Device) State(ctx context.Context) (string, error) {
	out, err := d.run(ctx, "get-state")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *Device) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append(append([]string(nil), d.argv[1:]...), args...)
	cmd := exec.CommandContext(ctx, d.argv[0], full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return out, fmt.Errorf("%s %v failed: %w", d.argv[0], full, err)
		}
		return out, fmt.Errorf("%s %v failed: %w (%s)", d.argv[0], full, err, trimmed)
	}
	d.logger.Debug("adb command", "args", full)
	return out, nil
}

// runSplit keeps stdout separate for binary payloads.
func (d *Device) runSplit(ctx context.Context, args ...string) ([]byte, []byte, error) {
	full := append(append([]string(nil), d.argv[1:]...), args...)
	cmd := exec.CommandContext(ctx, d.argv[0], full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		trimmed := strings.TrimSpace(stderr.String())
		if trimmed == "" {
			return nil, stderr.Bytes(), fmt.Errorf("%s %v failed: %w", d.argv[0], full, err)
		}
		return nil, stderr.Bytes(), fmt.Errorf("%s %v failed: %w (%s)", d.argv[0], full, err, trimmed)
	}
	d.logger.Debug("adb command", "args", full, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), stderr.Bytes(), nil
}

// inspect flags output that reports a failure despite a zero exit status;
// `adb shell input` does this for permission and argument errors.
func inspect(out []byte) agent.Diagnostics {
	text := strings.TrimSpace(string(out))
	if text == "" {
		return agent.Diagnostics{}
	}
	return agent.Diagnostics{
		LoggedError: strings.Contains(text, "Error") || strings.Contains(text, "Exception"),
		Message:     text,
	}
}
