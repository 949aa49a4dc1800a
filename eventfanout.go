package atelier

import (
	"pkt.systems/atelier/core"
	"pkt.systems/atelier/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnFileChange(event schema.ChangeEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnFileChange(event)
	}
}
