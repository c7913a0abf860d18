package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/presencesync/agent/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The control API only listens on the kiosk's loopback interface
		return true
	},
}

// WebSocketHandler streams capture and sync events to the local UI
type WebSocketHandler struct {
	hub *services.EventHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.EventHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleConnection upgrades HTTP to WebSocket and manages the connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	h.hub.Register(client)

	// Every UI client cares about both event streams
	h.hub.Subscribe(client, services.TopicCapture)
	h.hub.Subscribe(client, services.TopicSync)

	go client.WritePump()
	client.ReadPump(h.handleMessage)
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(client *services.WSClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Invalid WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case services.WSTypeSubscribe:
		if topic, ok := topicFromPayload(msg.Payload); ok {
			h.hub.Subscribe(client, topic)
		}

	case services.WSTypeUnsubscribe:
		if topic, ok := topicFromPayload(msg.Payload); ok {
			h.hub.Unsubscribe(client, topic)
		}

	case services.WSTypePing:
		pong, _ := json.Marshal(services.WSMessage{Type: services.WSTypePong})
		select {
		case client.Send <- pong:
		default:
		}
	}
}

func topicFromPayload(payload interface{}) (string, bool) {
	if topic, ok := payload.(string); ok {
		return topic, true
	}
	if obj, ok := payload.(map[string]interface{}); ok {
		if topic, ok := obj["topic"].(string); ok {
			return topic, true
		}
	}
	return "", false
}
