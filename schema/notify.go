package schema

import "time"

// NotifyType is the type tag on observer protocol frames.
type NotifyType string

const (
	// NotifyHello is the first frame on a new connection and carries its id.
	NotifyHello NotifyType = "hello"
	// NotifyPing is a heartbeat probe, sent by either side.
	NotifyPing NotifyType = "ping"
	// NotifyPong answers a ping.
	NotifyPong NotifyType = "pong"
	// NotifyFileChanged announces a created or modified file.
	NotifyFileChanged NotifyType = "file_changed"
	// NotifyFileDeleted announces a deleted or moved-away file.
	NotifyFileDeleted NotifyType = "file_deleted"
)

// Notification is the JSON frame pushed to observer connections. Push
// notifications carry no request/response correlation.
type Notification struct {
	Type      NotifyType `json:"type"`
	ConnID    ConnID     `json:"conn_id,omitempty"`
	Path      string     `json:"path,omitempty"`
	Timestamp time.Time  `json:"timestamp,omitzero"`
}

// NotificationFor maps a change event onto its observer protocol frame.
func NotificationFor(event ChangeEvent) Notification {
	kind := NotifyFileChanged
	if event.Kind == ChangeDeleted || event.Kind == ChangeMoved {
		kind = NotifyFileDeleted
	}
	return Notification{
		Type:      kind,
		Path:      event.Path,
		Timestamp: event.Timestamp,
	}
}
