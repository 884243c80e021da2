// Package wire implements the line-oriented agent protocol: command lines,
// status lines, and length-marked binary chunks sharing one byte stream.
package wire

import (
	"strconv"
	"strings"
)

// Command keywords.
const (
	KeywordVersion    = "version"
	KeywordCheck      = "check"
	KeywordTap        = "tap"
	KeywordSwipe      = "swipe"
	KeywordScreenshot = "screenshot"

	screenshotAllArg = "all"
)

// Coord is a pixel position.
type Coord struct {
	X int
	Y int
}

// Rect is a crop region. W and H are positive.
type Rect struct {
	X int
	Y int
	W int
	H int
}

// Command is one request line. Implemented by Version, Check, Tap, Swipe,
// ScreenshotAll and ScreenshotRects.
type Command interface {
	Keyword() string
	isCommand()
}

// Version asks the agent for its protocol version string.
type Version struct{}

// Check is a liveness no-op answered with ok.
type Check struct{}

// Tap touches one coordinate.
type Tap struct {
	At Coord
}

// Swipe drags between two coordinates. DurationMS of 0 leaves the duration to
// the agent.
type Swipe struct {
	From       Coord
	To         Coord
	DurationMS int
}

// ScreenshotAll captures the full frame as a single chunk.
type ScreenshotAll struct{}

// ScreenshotRects captures the frame once and returns one chunk per region,
// in order.
type ScreenshotRects struct {
	Regions []Rect
}

func (Version) Keyword() string         { return KeywordVersion }
func (Check) Keyword() string           { return KeywordCheck }
func (Tap) Keyword() string             { return KeywordTap }
func (Swipe) Keyword() string           { return KeywordSwipe }
func (ScreenshotAll) Keyword() string   { return KeywordScreenshot }
func (ScreenshotRects) Keyword() string { return KeywordScreenshot }

func (Version) isCommand()         {}
func (Check) isCommand()           {}
func (Tap) isCommand()             {}
func (Swipe) isCommand()           {}
func (ScreenshotAll) isCommand()   {}
func (ScreenshotRects) isCommand() {}

// ChunkCount reports how many data chunks precede the terminal status for cmd.
func ChunkCount(cmd Command) int {
	switch c := cmd.(type) {
	case ScreenshotAll:
		return 1
	case ScreenshotRects:
		return len(c.Regions)
	default:
		return 0
	}
}

// FormatCommand renders cmd as a protocol line without the trailing newline.
func FormatCommand(cmd Command) string {
	var b strings.Builder
	b.WriteString(cmd.Keyword())

	switch c := cmd.(type) {
	case Tap:
		writeInts(&b, c.At.X, c.At.Y)
	case Swipe:
		writeInts(&b, c.From.X, c.From.Y, c.To.X, c.To.Y)
		if c.DurationMS > 0 {
			writeInts(&b, c.DurationMS)
		}
	case ScreenshotAll:
		b.WriteByte(' ')
		b.WriteString(screenshotAllArg)
	case ScreenshotRects:
		for _, r := range c.Regions {
			writeInts(&b, r.X, r.Y, r.W, r.H)
		}
	}
	return b.String()
}

func writeInts(b *strings.Builder, values ...int) {
	for _, v := range values {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(v))
	}
}

// ParseCommand decodes one request line. Lines outside the grammar yield an
// *InvalidCommandError.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, invalid(line, "empty line")
	}

	keyword, args := fields[0], fields[1:]
	switch keyword {
	case KeywordVersion:
		if len(args) != 0 {
			return nil, invalid(line, "version takes no arguments")
		}
		return Version{}, nil
	case KeywordCheck:
		if len(args) != 0 {
			return nil, invalid(line, "check takes no arguments")
		}
		return Check{}, nil
	case KeywordTap:
		if len(args) != 2 {
			return nil, invalid(line, "tap takes 2 integers")
		}
		nums, err := parseInts(args)
		if err != nil {
			return nil, invalid(line, err.Error())
		}
		return Tap{At: Coord{X: nums[0], Y: nums[1]}}, nil
	case KeywordSwipe:
		if len(args) != 4 && len(args) != 5 {
			return nil, invalid(line, "swipe takes 4 or 5 integers")
		}
		nums, err := parseInts(args)
		if err != nil {
			return nil, invalid(line, err.Error())
		}
		swipe := Swipe{
			From: Coord{X: nums[0], Y: nums[1]},
			To:   Coord{X: nums[2], Y: nums[3]},
		}
		if len(nums) == 5 {
			if nums[4] == 0 {
				return nil, invalid(line, "swipe duration must be > 0")
			}
			swipe.DurationMS = nums[4]
		}
		return swipe, nil
	case KeywordScreenshot:
		return parseScreenshot(line, args)
	default:
		return nil, invalid(line, "unknown command")
	}
}

func parseScreenshot(line string, args []string) (Command, error) {
	if len(args) == 1 && args[0] == screenshotAllArg {
		return ScreenshotAll{}, nil
	}
	if len(args) == 0 || len(args)%4 != 0 {
		return nil, invalid(line, "screenshot takes all or groups of 4 integers")
	}

	nums, err := parseInts(args)
	if err != nil {
		return nil, invalid(line, err.Error())
	}

	regions := make([]Rect, 0, len(nums)/4)
	for i := 0; i < len(nums); i += 4 {
		r := Rect{X: nums[i], Y: nums[i+1], W: nums[i+2], H: nums[i+3]}
		if r.W == 0 || r.H == 0 {
			return nil, invalid(line, "region width and height must be > 0")
		}
		regions = append(regions, r)
	}
	return ScreenshotRects{Regions: regions}, nil
}

// parseInts accepts unsigned decimal integers only.
func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, arg := range args {
		n, err := parseUint(arg)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func parseUint(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, &strconv.NumError{Func: "parseUint", Num: s, Err: strconv.ErrSyntax}
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return n, nil
}
