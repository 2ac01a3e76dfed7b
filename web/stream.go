package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func writeEvent(w http.ResponseWriter, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// handleSSE sends one status message per poll as server-sent event.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, messages := s.poller.Subscribe()
	defer s.poller.Unsubscribe(id)

	err := writeEvent(w, Message{Type: StatusMessageType, Timestamp: time.Now(), Data: s.sdr.Status()})
	if err != nil {
		log.Printf("[DEBUG] sse %s: %v", id, err)
		return
	}
	flusher.Flush()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Type != StatusMessageType {
				continue
			}
			if err := writeEvent(w, msg); err != nil {
				log.Printf("[DEBUG] sse %s: %v", id, err)
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleWebSocket sends the current status first, then all status and spectrum messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	id, messages := s.poller.Subscribe()
	defer s.poller.Unsubscribe(id)

	err = writeMessage(conn, Message{Type: StatusMessageType, Timestamp: time.Now(), Data: s.sdr.Status()})
	if err != nil {
		log.Printf("[ERROR] websocket send: %v", err)
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("[DEBUG] websocket %s closed: %v", id, err)
				return
			}
			if messageType == websocket.TextMessage {
				log.Printf("[INFO] received websocket message: %s", data)
			}
		}
	}()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeTimeout))
				return
			}
			if err := writeMessage(conn, msg); err != nil {
				log.Printf("[ERROR] websocket broadcast: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}
