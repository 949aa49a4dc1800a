package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"pkt.systems/atelier/internal/logx"
	"pkt.systems/atelier/schema"
)

// wsWriteTimeout bounds a single frame write. A peer that stopped reading
// gets cut off instead of blocking the pump until TCP gives up.
const wsWriteTimeout = 10 * time.Second

// wsWriter serializes frame writes. Both the event pump and the reader's
// pong replies write to the same socket.
type wsWriter struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

func (w *wsWriter) send(note schema.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return err
		}
	}
	return wsutil.WriteServerMessage(w.conn, ws.OpText, data)
}

// handleEvents upgrades the request to a WebSocket observer connection.
// Registration happens before the upgrade so capacity rejections are plain
// HTTP errors the client can read.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, events, err := s.hub.Register()
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.hub.Remove(id)
		logx.Ctx(r.Context()).Warn("observer upgrade failed", "err", err)
		return
	}
	log := logx.WithConn(r.Context(), id).With("remote", clientIP(r))
	log.Info("observer connected")

	writer := &wsWriter{conn: conn, timeout: wsWriteTimeout}
	// Activation happens before the hello frame goes out: broadcasts from
	// here on queue in the connection's buffer, and the writer loop below
	// only drains it after the hello, so the hello stays the first frame.
	if err := s.hub.Activate(id); err != nil {
		log.Warn("observer activation failed", "err", err)
		s.hub.Remove(id)
		_ = conn.Close()
		return
	}
	if err := writer.send(schema.Notification{Type: schema.NotifyHello, ConnID: id, Timestamp: time.Now()}); err != nil {
		log.Warn("observer hello failed", "err", err)
		s.hub.Remove(id)
		_ = conn.Close()
		return
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var note schema.Notification
			if err := json.Unmarshal(data, &note); err != nil {
				log.Debug("observer frame ignored", "err", err)
				continue
			}
			switch note.Type {
			case schema.NotifyPing:
				if err := s.hub.Heartbeat(id); err != nil {
					return
				}
				if err := writer.send(schema.Notification{Type: schema.NotifyPong, Timestamp: time.Now()}); err != nil {
					return
				}
			case schema.NotifyPong:
				if err := s.hub.Heartbeat(id); err != nil {
					return
				}
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case note, ok := <-events:
			if !ok {
				// Reaped by the sweeper or removed on close.
				log.Info("observer channel closed")
				_ = conn.Close()
				<-readerDone
				return
			}
			if err := writer.send(note); err != nil {
				log.Info("observer write failed", "err", err)
				s.hub.MarkClosed(id)
				_ = conn.Close()
				<-readerDone
				s.hub.Remove(id)
				return
			}
		case <-ticker.C:
			if err := writer.send(schema.Notification{Type: schema.NotifyPing, Timestamp: time.Now()}); err != nil {
				log.Info("observer ping failed", "err", err)
				s.hub.MarkClosed(id)
				_ = conn.Close()
				<-readerDone
				s.hub.Remove(id)
				return
			}
		case <-readerDone:
			log.Info("observer disconnected")
			_ = conn.Close()
			s.hub.Remove(id)
			return
		case <-r.Context().Done():
			_ = conn.Close()
			<-readerDone
			s.hub.Remove(id)
			return
		}
	}
}
