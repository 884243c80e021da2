package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/Javran/android-input-agent/internal/wire"
)

type Command string

const (
	CommandServe      Command = "serve"
	CommandVerify     Command = "verify"
	CommandTap        Command = "tap"
	CommandSwipe      Command = "swipe"
	CommandScreenshot Command = "screenshot"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:      {},
	CommandVerify:     {},
	CommandTap:        {},
	CommandSwipe:      {},
	CommandScreenshot: {},
	CommandDoctor:     {},
	CommandVersion:    {},
	CommandHelp:       {},
}

// Parsed is the validated command line.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	// Port overrides the configured agent port when PortSet is true.
	Port    int
	PortSet bool

	// OutPath is the screenshot destination; a region index is inserted
	// before the extension when several regions are requested.
	OutPath string

	Tap     wire.Coord
	Swipe   wire.Swipe
	Regions []wire.Rect
}

func Parse(args []string) (Parsed, error) {
	fs := pflag.NewFlagSet("inputagent", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	configPath := fs.String("config", "", "config file path")
	port := fs.Int("port", 0, "agent TCP port")
	out := fs.StringP("out", "o", "", "screenshot output path")
	help := fs.BoolP("help", "h", false, "show help")
	showVersion := fs.Bool("version", false, "show version")

	if err := fs.Parse(args); err != nil {
		return Parsed{}, err
	}

	parsed := Parsed{
		Command:    CommandHelp,
		ShowHelp:   true,
		ConfigPath: *configPath,
		Port:       *port,
		PortSet:    fs.Changed("port"),
		OutPath:    *out,
	}
	if parsed.PortSet && (parsed.Port < 0 || parsed.Port > 65535) {
		return Parsed{}, fmt.Errorf("--port must be in 0..65535, got %d", parsed.Port)
	}
	if *help {
		return parsed, nil
	}
	if *showVersion {
		parsed.Command = CommandVersion
		parsed.ShowHelp = false
		return parsed, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return parsed, nil
	}

	cmd := Command(rest[0])
	if _, ok := validCommands[cmd]; !ok {
		return Parsed{}, fmt.Errorf("unknown command: %s", rest[0])
	}
	parsed.Command = cmd
	parsed.ShowHelp = cmd == CommandHelp

	if parsed.OutPath != "" && cmd != CommandScreenshot {
		return Parsed{}, fmt.Errorf("--out only applies to %s", CommandScreenshot)
	}

	ints, err := parseInts(rest[1:])
	if err != nil {
		return Parsed{}, fmt.Errorf("%s: %w", cmd, err)
	}

	switch cmd {
	case CommandTap:
		if len(ints) != 2 {
			return Parsed{}, errors.New("tap requires X Y")
		}
		parsed.Tap = wire.Coord{X: ints[0], Y: ints[1]}
	case CommandSwipe:
		if len(ints) != 4 && len(ints) != 5 {
			return Parsed{}, errors.New("swipe requires X0 Y0 X1 Y1 [MS]")
		}
		parsed.Swipe = wire.Swipe{
			From: wire.Coord{X: ints[0], Y: ints[1]},
			To:   wire.Coord{X: ints[2], Y: ints[3]},
		}
		if len(ints) == 5 {
			if ints[4] == 0 {
				return Parsed{}, errors.New("swipe duration must be > 0")
			}
			parsed.Swipe.DurationMS = ints[4]
		}
	case CommandScreenshot:
		if len(ints)%4 != 0 {
			return Parsed{}, errors.New("screenshot regions are groups of X Y W H")
		}
		for i := 0; i < len(ints); i += 4 {
			r := wire.Rect{X: ints[i], Y: ints[i+1], W: ints[i+2], H: ints[i+3]}
			if r.W == 0 || r.H == 0 {
				return Parsed{}, fmt.Errorf("screenshot region %d has zero size", i/4)
			}
			parsed.Regions = append(parsed.Regions, r)
		}
	default:
		if len(ints) != 0 {
			return Parsed{}, fmt.Errorf("unexpected arguments after command %q", cmd)
		}
	}

	return parsed, nil
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("expected a non-negative integer, got %q", arg)
		}
		out = append(out, n)
	}
	return out, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--port N] <command> [args]

Commands:
  serve                        Run the agent on the loopback interface
  verify                       Check that an agent answers with the expected version
  tap X Y                      Touch the screen once
  swipe X0 Y0 X1 Y1 [MS]       Drag between two points
  screenshot [--out PATH] [X Y W H ...]
                               Capture the screen, or one image per region
  doctor                       Run configuration and environment checks
  version                      Print version information
  help                         Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/inputagent/config.jsonc)
  --port N        Agent port (overrides config and INPUT_AGENT_PORT)
  -o, --out PATH  Screenshot output path (default: screenshot.png)
  -h, --help      Show help
  --version       Show version

Exit codes:
  0 success, 1 runtime error, 2 usage error, 6 agent needs a restart
`, binaryName)
}
