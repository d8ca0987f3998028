package core

import "pkt.systems/sshtabs/schema"

var transitions = map[schema.ConnectionState][]schema.ConnectionState{
	schema.StateInitializing: {schema.StateConnecting, schema.StateError, schema.StateClosed},
	schema.StateConnecting:   {schema.StateConnected, schema.StateError, schema.StateClosed},
	schema.StateConnected:    {schema.StateClosed},
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to schema.ConnectionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// maxLogLines bounds the per-session lifecycle log.
const maxLogLines = 8

type lifecycleLog struct {
	lines []string
}

func (l *lifecycleLog) add(line string) {
	l.lines = append(l.lines, line)
	if extra := len(l.lines) - maxLogLines; extra > 0 {
		l.lines = append([]string(nil), l.lines[extra:]...)
	}
}

func (l *lifecycleLog) snapshot() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
