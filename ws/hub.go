package ws

import (
	"context"
	"sync"
	"time"

	"agency_backend/internal/logger"
	"agency_backend/internal/metrics"
	"agency_backend/internal/presence"
)

func userRoom(userID string) string { return "user:" + userID }
func chatRoom(chatID string) string { return "chat:" + chatID }

// Hub хранит комнаты и рассылает события. Комнаты: "user:<id>" (все соединения
// пользователя) и "chat:<id>" (соединения, открывшие чат).
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	presence *presence.Registry
}

func NewHub(presence *presence.Registry) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		presence: presence,
	}
}

// Run обновляет метрики и закрывает все соединения при остановке
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			metrics.SetOnlineUsers(h.presence.Count())
		}
	}
}

// register - соединение прошло аутентификацию
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, userRoom(c.userID))
	h.mu.Unlock()

	if h.presence.Register(c.userID, c.id) {
		logger.CtxDebug(c.ctx, "User came online")
	}
	metrics.ConnectionOpened()
	metrics.SetOnlineUsers(h.presence.Count())
}

// unregister идемпотентен: вызывается и из readPump, и при вытеснении медленного клиента
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
	h.mu.Unlock()

	if h.presence.Remove(c.userID, c.id) {
		logger.CtxDebug(c.ctx, "User went offline")
	}
	metrics.ConnectionClosed()
	metrics.SetOnlineUsers(h.presence.Count())
}

func (h *Hub) Join(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.joinLocked(c, chatRoom(chatID))
	}
}

func (h *Hub) Leave(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, chatRoom(chatID))
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// ToChat - всем соединениям комнаты чата
func (h *Hub) ToChat(chatID, event string, data interface{}) {
	h.deliver(event, data, []string{chatRoom(chatID)})
}

// ToUser - всем соединениям пользователя
func (h *Hub) ToUser(userID, event string, data interface{}) {
	h.deliver(event, data, []string{userRoom(userID)})
}

// Fanout - комната чата плюс личные комнаты userIDs. Соединение, состоящее
// в нескольких комнатах, получает событие один раз.
func (h *Hub) Fanout(chatID string, userIDs []string, event string, data interface{}) {
	rooms := make([]string, 0, len(userIDs)+1)
	rooms = append(rooms, chatRoom(chatID))
	for _, id := range userIDs {
		rooms = append(rooms, userRoom(id))
	}
	h.deliver(event, data, rooms)
}

// EvictFromChat убирает все соединения пользователя из комнаты чата
func (h *Hub) EvictFromChat(chatID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := chatRoom(chatID)
	for c := range h.rooms[userRoom(userID)] {
		h.leaveLocked(c, room)
	}
}

func (h *Hub) deliver(event string, data interface{}, rooms []string) {
	msg, err := encode(event, data)
	if err != nil {
		logger.Error("Failed to encode websocket event", "event", event, "error", err.Error())
		return
	}

	var slow []*Client
	h.mu.RLock()
	seen := make(map[*Client]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			select {
			case c.send <- msg:
			default:
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	// Буфер переполнен - клиент отключается
	for _, c := range slow {
		logger.CtxWarn(c.ctx, "Dropping slow websocket client", "event", event)
		h.unregister(c)
	}
}

// sendTo - только одному соединению (ответы об ошибках)
func (h *Hub) sendTo(c *Client, event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		return
	}

	h.mu.RLock()
	_, ok := h.clients[c]
	full := false
	if ok {
		select {
		case c.send <- msg:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		h.unregister(c)
	}
}

// ClientCount - число открытых соединений
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) roomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
