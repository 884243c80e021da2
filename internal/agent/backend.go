package agent

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/Javran/android-input-agent/internal/wire"
)

// Backend performs device automation on behalf of the dispatcher.
//
// Every call reports Diagnostics next to its error: a backend may log a
// failure through its own channel without returning one, and the dispatcher
// treats that as a failed command too.
type Backend interface {
	Tap(ctx context.Context, at wire.Coord) (Diagnostics, error)
	Drag(ctx context.Context, from, to wire.Coord, duration time.Duration) (Diagnostics, error)
	Capture(ctx context.Context) (image.Image, Diagnostics, error)
	Crop(img image.Image, region wire.Rect) (image.Image, Diagnostics, error)
	Encode(img image.Image) ([]byte, Diagnostics, error)
}

// Diagnostics is the side channel of a backend call.
type Diagnostics struct {
	LoggedError bool
	Message     string
}

// Merge folds other into d.
func (d Diagnostics) Merge(other Diagnostics) Diagnostics {
	out := Diagnostics{LoggedError: d.LoggedError || other.LoggedError}
	switch {
	case d.Message == "":
		out.Message = other.Message
	case other.Message == "":
		out.Message = d.Message
	default:
		out.Message = strings.Join([]string{d.Message, other.Message}, "; ")
	}
	return out
}
