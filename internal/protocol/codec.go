// Package protocol implements the line-oriented auction wire codec.
//
// One message per line: a command token followed by key=value pairs
// separated by whitespace. Values are opaque strings and carry no type
// information; the dispatcher decodes them into the types it expects.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedMessage indicates a line that cannot be split into a command
// and at least one key=value token.
var ErrMalformedMessage = errors.New("malformed message")

// Message is one decoded protocol line.
type Message struct {
	Command string
	Fields  map[string]string
}

// Get returns the value for key and whether it was present.
func (m Message) Get(key string) (string, bool) {
	v, ok := m.Fields[key]
	return v, ok
}

// Encode renders a command and its fields as a single newline-terminated
// line. Field values must not contain whitespace or '='.
func Encode(command string, fields map[string]string) (string, error) {
	if command == "" || strings.ContainsAny(command, " \t") {
		return "", fmt.Errorf("%w: bad command %q", ErrMalformedMessage, command)
	}
	var b strings.Builder
	b.WriteString(command)
	for key, value := range fields {
		if key == "" || strings.ContainsAny(key, " \t=") {
			return "", fmt.Errorf("%w: bad key %q", ErrMalformedMessage, key)
		}
		if strings.ContainsAny(value, " \t=\n") {
			return "", fmt.Errorf("%w: bad value %q for key %q", ErrMalformedMessage, value, key)
		}
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}
	b.WriteByte('\n')
	return b.String(), nil
}

// Decode parses one line into a Message. The command is everything before
// the first run of whitespace; the remainder is split into key=value
// tokens. A duplicate key keeps its last occurrence. A line with no
// keyvals after the command fails with ErrMalformedMessage.
func Decode(line string) (Message, error) {
	tokens := strings.Fields(strings.TrimRight(line, "\r\n"))
	if len(tokens) < 2 {
		return Message{}, fmt.Errorf("%w: no keyvals in %q", ErrMalformedMessage, line)
	}
	command := tokens[0]

	fields := make(map[string]string)
	for _, token := range tokens[1:] {
		key, value, found := strings.Cut(token, "=")
		if !found || key == "" {
			return Message{}, fmt.Errorf("%w: bad token %q in %q", ErrMalformedMessage, token, line)
		}
		fields[key] = value
	}

	return Message{Command: command, Fields: fields}, nil
}
