package schema

import "time"

// ConnectionState is the lifecycle state of a session.
type ConnectionState string

const (
	// StateInitializing is the state of a freshly opened session.
	StateInitializing ConnectionState = "initializing"
	// StateConnecting indicates the transport dial is in flight.
	StateConnecting ConnectionState = "connecting"
	// StateConnected indicates a live shell channel is streaming.
	StateConnected ConnectionState = "connected"
	// StateError indicates the session failed before connecting.
	StateError ConnectionState = "error"
	// StateClosed indicates the session ended.
	StateClosed ConnectionState = "closed"
)

// Terminal reports whether no further transitions are possible.
func (s ConnectionState) Terminal() bool {
	return s == StateError || s == StateClosed
}

// Position is a zero-based cell coordinate.
type Position struct {
	X int
	Y int
}

// ScreenSnapshot is a point-in-time view of a session's emulation buffer.
type ScreenSnapshot struct {
	Lines  []string
	Cursor Position
	Cols   int
	Rows   int
	// Seq increments with every extraction of the owning session.
	Seq uint64
}

// SessionSnapshot is a read-only view of a session for the tab bar and content pane.
type SessionSnapshot struct {
	ID        SessionID
	ProfileID ProfileID
	Name      string
	State     ConnectionState
	Active    bool
	CreatedAt time.Time
	Log       []string
	Screen    ScreenSnapshot
}
