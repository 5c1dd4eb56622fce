package command

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies a playback command.
type Kind int

// Recognised commands.
const (
	Play Kind = iota + 1
	Pause
	Stop
	Rewind
	Seek
)

// DefaultRewind is how far a bare "rewind" moves the position back.
const DefaultRewind = 5 * time.Second

func (k Kind) String() string {
	switch k {
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Stop:
		return "stop"
	case Rewind:
		return "rewind"
	case Seek:
		return "seek"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is a parsed control message. Millis is the absolute target for
// Seek and the backward offset for Rewind; it is zero for the other kinds.
type Command struct {
	Kind   Kind
	Millis int64
}

func (c Command) String() string {
	switch c.Kind {
	case Seek, Rewind:
		return fmt.Sprintf("%s %d", c.Kind, c.Millis)
	default:
		return c.Kind.String()
	}
}

// Parse converts command text into a Command. Matching is case-insensitive and
// ignores surrounding whitespace.
func Parse(text string) (Command, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return Command{}, &Error{Text: text, Err: ErrUnknown}
	}

	var kind Kind
	switch fields[0] {
	case "play":
		kind = Play
	case "pause":
		kind = Pause
	case "stop":
		kind = Stop
	case "rewind":
		kind = Rewind
	case "seek":
		kind = Seek
	default:
		return Command{}, &Error{Text: text, Err: ErrUnknown}
	}

	args := fields[1:]
	switch kind {
	case Seek:
		if len(args) != 1 {
			return Command{}, &Error{Text: text, Err: ErrBadArgument}
		}
		ms, err := parseMillis(args[0])
		if err != nil {
			return Command{}, &Error{Text: text, Err: err}
		}
		return Command{Kind: Seek, Millis: ms}, nil
	case Rewind:
		switch len(args) {
		case 0:
			return Command{Kind: Rewind, Millis: DefaultRewind.Milliseconds()}, nil
		case 1:
			ms, err := parseMillis(args[0])
			if err != nil {
				return Command{}, &Error{Text: text, Err: err}
			}
			return Command{Kind: Rewind, Millis: ms}, nil
		default:
			return Command{}, &Error{Text: text, Err: ErrBadArgument}
		}
	default:
		if len(args) != 0 {
			return Command{}, &Error{Text: text, Err: ErrBadArgument}
		}
		return Command{Kind: kind}, nil
	}
}

func parseMillis(s string) (int64, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrBadArgument
	}
	if ms < 0 {
		return 0, ErrOutOfRange
	}
	return ms, nil
}

// Split returns the command texts carried by one read from the connection.
// Without newlines the whole chunk is a single command.
func Split(chunk []byte) []string {
	var out []string
	for _, line := range bytes.Split(chunk, []byte{'\n'}) {
		if s := strings.TrimSpace(string(line)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// maxLineLength bounds an unterminated line held between reads.
const maxLineLength = 4096

// Splitter turns successive reads from one connection into command texts.
// Text after the last newline of a read is held and completed by the next
// read. A read with no newline and nothing held is a single command, as with
// Split. The zero value is ready to use.
type Splitter struct {
	pending []byte
}

// Feed returns the commands completed by chunk. chunk is not retained.
func (s *Splitter) Feed(chunk []byte) []string {
	i := bytes.LastIndexByte(chunk, '\n')
	if i < 0 {
		if len(s.pending) == 0 {
			return Split(chunk)
		}
		s.pending = append(s.pending, chunk...)
		if len(s.pending) > maxLineLength {
			out := Split(s.pending)
			s.pending = nil
			return out
		}
		return nil
	}

	out := Split(append(s.pending, chunk[:i+1]...))
	s.pending = nil
	if rest := chunk[i+1:]; len(bytes.TrimSpace(rest)) > 0 {
		s.pending = append([]byte(nil), rest...)
	}
	return out
}
