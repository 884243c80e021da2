package version

import (
	"runtime"

	"github.com/Javran/android-input-agent/internal/wire"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders build metadata and the wire protocol version spoken.
func String() string {
	return "inputagent " + Version + " (protocol=" + wire.VersionString + ", commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}
