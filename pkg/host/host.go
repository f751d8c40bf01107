// Package host bridges a line-based command stream to the dispatcher.
//
// A request line is "command|arg|arg". Every request gets exactly one reply
// line in array form:
//
//	["ok", "command"]
//	["ok", "command", <result as JSON>]
//	["error", "command", "message"]
package host

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/orbitkit/autopilot/internal/dispatcher"
)

// Built-in commands answered without the dispatcher.
const (
	CommandVersion   = ":VERSION:"
	CommandTimestamp = ":TIMESTAMP:"
)

// ErrNoHandler is reported for commands nothing is registered for.
var ErrNoHandler = errors.New("no handler registered")

const maxLine = 1 << 20

// Bridge answers host requests.
type Bridge struct {
	version    string
	dispatcher *dispatcher.Dispatcher
	now        func() time.Time
}

// New creates a Bridge. d may be nil, in which case only the built-in commands answer.
func New(d *dispatcher.Dispatcher, version string) *Bridge {
	if version == "" {
		version = "No version set"
	}
	return &Bridge{version: version, dispatcher: d, now: time.Now}
}

// ParseLine splits a request into its command and arguments.
func ParseLine(line string) dispatcher.Event {
	parts := strings.Split(strings.TrimSpace(line), "|")
	e := dispatcher.Event{Command: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		e.Args = parts[1:]
	}
	return e
}

// Call handles a single request line and returns the reply.
func (b *Bridge) Call(line string) string {
	e := ParseLine(line)
	e.Timestamp = b.now()
	return b.CallArgs(e)
}

// CallArgs handles an already split request.
func (b *Bridge) CallArgs(e dispatcher.Event) string {
	switch e.Command {
	case CommandVersion:
		return FormatResponse(e.Command, b.version, nil)
	case CommandTimestamp:
		return FormatResponse(e.Command, strconv.FormatInt(b.now().UTC().UnixNano(), 10), nil)
	}

	if b.dispatcher == nil || !b.dispatcher.HasHandler(e.Command) {
		return FormatResponse(e.Command, nil, ErrNoHandler)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	result, err := b.dispatcher.Dispatch(e)
	return FormatResponse(e.Command, result, err)
}

// Serve answers requests from r on w until r is exhausted or ctx is done.
// Blank lines and lines starting with '#' are skipped.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := fmt.Fprintln(w, b.Call(line)); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
	}
	return sc.Err()
}

// FormatResponse renders a dispatcher result as a reply line.
func FormatResponse(command string, result any, err error) string {
	cmd := quote(command)
	if err != nil {
		return fmt.Sprintf(`["error", %s, %s]`, cmd, quote(err.Error()))
	}
	if result == nil {
		return fmt.Sprintf(`["ok", %s]`, cmd)
	}
	data, mErr := json.Marshal(result)
	if mErr != nil {
		return fmt.Sprintf(`["error", %s, %s]`, cmd, quote(mErr.Error()))
	}
	return fmt.Sprintf(`["ok", %s, %s]`, cmd, data)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
