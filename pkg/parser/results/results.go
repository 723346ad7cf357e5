// Package results parses the sentinel result lines printed by both runner scripts.
package results

import (
	"bufio"
	"encoding/base64"
	"strings"

	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/scripts"
)

// ParseStates extracts one TestEvent per well-formed result line:
//
//	<prefix>:<state>:<id>[:<base64 message>]
//
// Every other line is ignored, so interleaved user output never breaks
// parsing. Events are returned in output order.
func ParseStates(output string) []domain.TestEvent {
	var states []domain.TestEvent

	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		if ev, ok := ParseLine(sc.Text()); ok {
			states = append(states, ev)
		}
	}
	return states
}

// ParseLine parses a single result line.
func ParseLine(line string) (domain.TestEvent, bool) {
	line = strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(line, scripts.ResultPrefix+":")
	if !ok {
		return domain.TestEvent{}, false
	}

	keyword, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return domain.TestEvent{}, false
	}
	state, err := domain.ParseState(keyword)
	if err != nil || state == domain.StateRunning {
		return domain.TestEvent{}, false
	}

	id, encoded, hasMessage := splitMessage(rest)
	if id == "" {
		return domain.TestEvent{}, false
	}

	var message string
	if hasMessage && encoded != "" {
		message = decode(encoded)
	}
	return domain.NewTestEvent(id, state, message), true
}

// splitMessage separates the id from the trailing message field. Ids may
// contain "::", so only a lone colon counts as a field separator.
func splitMessage(s string) (id, message string, ok bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != ':' {
			continue
		}
		if (i > 0 && s[i-1] == ':') || (i+1 < len(s) && s[i+1] == ':') {
			i--
			continue
		}
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

// decode returns the base64 payload, or the raw text when it is not base64.
func decode(s string) string {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return string(data)
}
