package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/questforge/questgraph/internal/events"
)

const (
	// backlog sent before live events
	recentEventsCount = 50

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// must stay below pongWait
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The editor is served from another origin during development.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventStream owns one WebSocket connection and its subscription.
type eventStream struct {
	conn *websocket.Conn
	sub  events.Subscriber
}

func (s *eventStream) close() {
	events.Unsubscribe(s.sub)
	s.conn.Close()
}

func (s *eventStream) send(kind int, data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(kind, data)
}

func (s *eventStream) sendEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		// Unencodable fields only lose this one event.
		log.Printf("ws encode %s: %v", e.Name, err)
		return nil
	}
	return s.send(websocket.TextMessage, data)
}

// readLoop services pongs and returns when the peer goes away.
func (s *eventStream) readLoop(done chan<- struct{}) {
	defer close(done)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsEventsHandler streams events to a WebSocket client, starting with the
// most recent ones. ?session_id= restricts the stream to one run.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter := events.BySession(r.URL.Query().Get("session_id"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	// Subscribe before reading the backlog so nothing emitted in between is lost.
	s := &eventStream{conn: conn, sub: events.Subscribe(filter)}
	defer s.close()

	for _, e := range events.RecentEvents(recentEventsCount, filter) {
		if err := s.sendEvent(e); err != nil {
			log.Printf("ws write backlog failed: %v", err)
			return
		}
	}

	done := make(chan struct{})
	go s.readLoop(done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-s.sub:
			if !ok {
				return
			}
			if err := s.sendEvent(e); err != nil {
				log.Printf("ws write event failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := s.send(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
