// Package realtime pushes ILV report events to websocket subscribers of a
// project.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/auth"
	"github.com/larscolombia/kapa/internal/models"
)

// Event types.
const (
	EventCreated         = "created"
	EventUpdated         = "updated"
	EventClosed          = "closed"
	EventReopened        = "reopened"
	EventAttachmentAdded = "attachment_added"
)

type Event struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"projectId"`
	ReportID  string    `json:"reportId"`
	Number    string    `json:"number,omitempty"`
	Estado    string    `json:"estado,omitempty"`
	At        time.Time `json:"at"`
}

// conn is the part of *websocket.Conn the hub writes to.
type conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Hub manages websocket clients subscribed to project events.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[conn]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[conn]struct{})}
}

func (h *Hub) Subscribe(projectID string, c conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[projectID] == nil {
		h.clients[projectID] = make(map[conn]struct{})
	}
	h.clients[projectID][c] = struct{}{}
}

func (h *Hub) Unsubscribe(projectID string, c conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[projectID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, projectID)
		}
	}
}

func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[projectID])
}

// Publish sends the event to every subscriber of its project. Clients
// that fail a write are dropped.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	conns := make([]conn, 0, len(h.clients[ev.ProjectID]))
	for c := range h.clients[ev.ProjectID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			logrus.WithError(err).Debug("ws write error")
			h.Unsubscribe(ev.ProjectID, c)
			c.Close(websocket.StatusNormalClosure, "")
		}
	}
}

// ReportEvent builds an event from a report.
func ReportEvent(typ string, r *models.IlvReport) Event {
	return Event{Type: typ, ProjectID: r.ProjectID, ReportID: r.ID, Number: r.Number, Estado: string(r.Estado)}
}

// ProjectAuthorizer reports whether the scope may follow a project.
type ProjectAuthorizer func(ctx context.Context, scope models.Scope, projectID string) (bool, error)

type subscribeMsg struct {
	ProjectID string `json:"project_id"`
}

// Handler upgrades authenticated requests and subscribes the connection to
// every project named in incoming {"project_id": "..."} messages.
func (h *Hub) Handler(origins []string, allowed ProjectAuthorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetUser(r.Context())
		if claims == nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
		if err != nil {
			logrus.WithError(err).Warn("ws accept error")
			return
		}
		defer ws.CloseNow()

		var subscribed []string
		defer func() {
			for _, id := range subscribed {
				h.Unsubscribe(id, ws)
			}
		}()

		scope := claims.Scope()
		for {
			_, data, err := ws.Read(r.Context())
			if err != nil {
				return
			}
			var msg subscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil || msg.ProjectID == "" {
				ws.Close(websocket.StatusInvalidFramePayloadData, "invalid subscribe message")
				return
			}
			ok, err := allowed(r.Context(), scope, msg.ProjectID)
			if err != nil || !ok {
				ws.Close(websocket.StatusPolicyViolation, "project not accessible")
				return
			}
			h.Subscribe(msg.ProjectID, ws)
			subscribed = append(subscribed, msg.ProjectID)
		}
	}
}
