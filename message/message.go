// Package message implements the canonical text encoding that gets signed.
//
// A message is an ordered list of fields rendered as one "name: value" line
// per field. The server re-parses the signed cleartext, so the output has to
// be byte-for-byte reproducible: field order is the insertion order and every
// value goes through the same formatter on every code path.
package message

import (
	"errors"
	"strconv"
	"strings"

	"github.com/collapsinghierarchy/repsync/model"
)

const sep = ": "

type Field struct {
	Name  string
	Value string
}

// Message is an ordered field list.
type Message []Field

// Add appends a field and returns the extended message.
func (m Message) Add(name, value string) Message {
	return append(m, Field{Name: name, Value: value})
}

// Encode renders m as "name: value\n" lines. Values are not escaped.
func (m Message) Encode() string {
	var b strings.Builder
	for _, f := range m {
		b.WriteString(f.Name)
		b.WriteString(sep)
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	return b.String()
}

// Get returns the value of the first field called name.
func (m Message) Get(name string) (string, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

var ErrMalformed = errors.New("malformed message")

// Parse reverses Encode. A line without a separator continues the value of
// the previous field, so multi-line comments survive a round trip.
func Parse(text string) (Message, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil, nil
	}
	var m Message
	for _, line := range strings.Split(text, "\n") {
		name, value, ok := strings.Cut(line, sep)
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			if len(m) == 0 {
				return nil, ErrMalformed
			}
			m[len(m)-1].Value += "\n" + line
			continue
		}
		m = append(m, Field{Name: name, Value: value})
	}
	return m, nil
}

func FormatTimestamp(ts int64) string { return strconv.FormatInt(ts, 10) }

// FormatPoints renders the shortest decimal that round-trips, e.g. "-1", "0.5".
func FormatPoints(p float64) string { return strconv.FormatFloat(p, 'f', -1, 64) }

// Field names of the wire messages.
const (
	FieldUUID       = "uuid"
	FieldTimestamp  = "timestamp"
	FieldPlayerUUID = "playeruuid"
	FieldPoints     = "points"
	FieldComment    = "comment"
	FieldName       = "name"
)

func ForSubmission(s model.Submission) Message {
	return Message{}.
		Add(FieldUUID, s.ID.String()).
		Add(FieldTimestamp, FormatTimestamp(s.Timestamp)).
		Add(FieldPlayerUUID, s.PlayerUUID).
		Add(FieldPoints, FormatPoints(s.Points)).
		Add(FieldComment, s.Comment)
}

func ForRegistration(serverName string) Message {
	return Message{}.Add(FieldName, serverName)
}

func ForRevocation(ts int64, comment string) Message {
	return Message{}.
		Add(FieldTimestamp, FormatTimestamp(ts)).
		Add(FieldComment, comment)
}
