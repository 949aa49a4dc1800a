package core

import "pkt.systems/atelier/schema"

// EventSink receives change events for fanout to observer connections.
// Implementations must not block; the service calls the sink from request
// handlers and from the monitor's goroutine.
type EventSink interface {
	OnFileChange(event schema.ChangeEvent)
}

// NopEventSink discards events. Used before a transport sink is installed.
type NopEventSink struct{}

// OnFileChange implements EventSink.
func (NopEventSink) OnFileChange(schema.ChangeEvent) {}
