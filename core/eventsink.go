package core

import "pkt.systems/sshtabs/schema"

// EventSink receives session events from the registry.
type EventSink interface {
	OnScreen(id schema.SessionID, seq uint64)
	OnState(id schema.SessionID, state schema.ConnectionState)
	OnSessions()
}

type nopSink struct{}

func (nopSink) OnScreen(schema.SessionID, uint64)                 {}
func (nopSink) OnState(schema.SessionID, schema.ConnectionState) {}
func (nopSink) OnSessions()                                       {}
