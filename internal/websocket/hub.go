package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"focusvault-backend/internal/middleware"
	"focusvault-backend/internal/models"
	"focusvault-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MessageStore persists chat messages as the hub relays them.
// *repository.ChatMessageRepo satisfies it.
type MessageStore interface {
	Insert(ctx context.Context, m *models.ChatMessage) error
}

// UserDirectory resolves connection credentials to a profile at handshake
// time. *repository.UserRepo satisfies it.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Hub is the realtime gateway: it authenticates connections, relays chat
// events through the room registry, persists messages as it goes, and fans
// session lifecycle events out to an owner's other devices. The registry is
// injected so the hub has no ambient global state.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	connections map[uuid.UUID][]*Client
	cancelFuncs map[uuid.UUID]context.CancelFunc

	// Per-room dispatch locks give every room a single serialization point:
	// all members observe joins, leaves and messages in the same order. The
	// entry is pruned together with the registry state when the last member
	// leaves, so roomID churn cannot grow the map without bound.
	locksMu   sync.Mutex
	roomLocks map[string]*sync.Mutex

	rooms    *RoomRegistry
	messages MessageStore
	users    UserDirectory
	jwt      *middleware.JWTAuth
	redis    *redis.Client // pub/sub for the session relay; nil disables it
}

func NewHub(rooms *RoomRegistry, messages MessageStore, users UserDirectory, jwtAuth *middleware.JWTAuth, redisClient *redis.Client) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		connections: make(map[uuid.UUID][]*Client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		roomLocks:   make(map[string]*sync.Mutex),
		rooms:       rooms,
		messages:    messages,
		users:       users,
		jwt:         jwtAuth,
		redis:       redisClient,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param; browsers cannot set headers on
	// websocket handshakes.
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.jwt.VerifyToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	avatar := ""
	if user.AvatarURL != nil {
		avatar = *user.AvatarURL
	}
	client := newClient(user.ID, user.DisplayName, avatar, conn)

	h.register(client)
	go client.writeLoop()
	h.readLoop(client)
}

func (h *Hub) readLoop(c *Client) {
	defer h.disconnect(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.enqueue(errorEvent("Malformed event"))
			continue
		}
		h.dispatch(c, ev)
	}
}

// dispatch routes one inbound event. The switch is exhaustive over
// EventKind; a request the server does not understand gets an error event
// back on the same connection rather than silence.
func (h *Hub) dispatch(c *Client, ev InboundEvent) {
	kind := ParseEventKind(ev.Type)
	if kind.IsSessionRelay() {
		h.relaySession(c, kind, ev)
		return
	}

	switch kind {
	case EventChatJoin:
		h.joinRoom(c, ev.RoomID)
	case EventChatSend:
		h.sendMessage(c, ev.RoomID, ev.Message)
	case EventChatLeave:
		h.leaveRoom(c, ev.RoomID, true)
	default:
		c.enqueue(errorEvent("Unknown event type: " + ev.Type))
	}
}

func (h *Hub) joinRoom(c *Client, roomID string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		c.enqueue(errorEvent("Room ID is required"))
		return
	}

	lock := h.lockRoom(roomID)
	defer lock.Unlock()

	members, err := h.rooms.Join(roomID, Participant{
		ConnID:      c.ID,
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		Status:      "online",
		JoinedAt:    time.Now().UTC(),
	})
	if err != nil {
		// Room at capacity: notify the requester only, nothing is persisted.
		c.enqueue(map[string]interface{}{"type": evRoomFull, "room_id": roomID})
		return
	}

	msg := c.chatMessage(roomID, models.MessageJoin, c.DisplayName+" joined the room")
	if err := h.persistMessage(msg); err != nil {
		// Membership lives in memory; history just misses the notice.
		log.Printf("failed to persist join notice for room %s: %v", roomID, err)
	}

	c.enqueue(map[string]interface{}{
		"type":         evJoined,
		"room_id":      roomID,
		"participants": members,
	})
	h.broadcastRoom(members, map[string]interface{}{
		"type":         evUserJoined,
		"room_id":      roomID,
		"message":      msg,
		"participants": members,
	})
}

func (h *Hub) sendMessage(c *Client, roomID, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		// Whitespace-only sends are a deliberate no-op.
		return
	}
	if utf8.RuneCountInString(body) > models.MaxMessageLength {
		c.enqueue(errorEvent("Message exceeds 1000 characters"))
		return
	}

	lock := h.lockRoom(roomID)
	defer lock.Unlock()

	members := h.rooms.Members(roomID)
	if !containsConn(members, c.ID) {
		c.enqueue(errorEvent("Join the room before sending messages"))
		return
	}

	msg := c.chatMessage(roomID, models.MessageText, body)
	if err := h.persistMessage(msg); err != nil {
		log.Printf("failed to persist message for room %s: %v", roomID, err)
		c.enqueue(errorEvent("Message could not be saved"))
		return
	}

	// The sender receives their own message through the same broadcast as
	// everyone else; there is no local echo path.
	h.broadcastRoom(members, map[string]interface{}{
		"type":    evMessage,
		"message": msg,
	})
}

func (h *Hub) leaveRoom(c *Client, roomID string, explicit bool) {
	lock := h.lockRoom(roomID)
	defer lock.Unlock()

	remaining, found := h.rooms.Leave(roomID, c.ID)
	if !found {
		if explicit {
			c.enqueue(errorEvent("Not a member of that room"))
		}
		return
	}
	if len(remaining) == 0 {
		h.pruneRoomLock(roomID)
	}

	msg := c.chatMessage(roomID, models.MessageLeave, c.DisplayName+" left the room")
	if err := h.persistMessage(msg); err != nil {
		log.Printf("failed to persist leave notice for room %s: %v", roomID, err)
	}

	if len(remaining) > 0 {
		h.broadcastRoom(remaining, map[string]interface{}{
			"type":         evUserLeft,
			"room_id":      roomID,
			"message":      msg,
			"participants": remaining,
		})
	}
}

// relaySession fans a device's session lifecycle notice out to the owner's
// other connections, and optionally drops a presence notice into a room.
// It never touches coordinator state: the authoritative mutation goes
// through the HTTP API.
func (h *Hub) relaySession(c *Client, kind EventKind, ev InboundEvent) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":         kind.String(),
		"subject":      ev.Subject,
		"user_id":      c.UserID,
		"display_name": c.DisplayName,
		"origin":       c.ID,
	})
	if err != nil {
		return
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.redis.Publish(ctx, services.SessionChannel(c.UserID), payload).Err(); err != nil {
			log.Printf("failed to publish session relay for user %s: %v", c.UserID, err)
		}
		cancel()
	} else {
		h.fanOut(c.UserID, payload)
	}

	if ev.RoomID == "" {
		return
	}

	lock := h.lockRoom(ev.RoomID)
	defer lock.Unlock()

	members := h.rooms.Members(ev.RoomID)
	if !containsConn(members, c.ID) {
		return
	}

	notice := c.chatMessage(ev.RoomID, models.MessageSystem, c.DisplayName+" "+presenceVerb(kind)+" "+ev.Subject)
	if err := h.persistMessage(notice); err != nil {
		log.Printf("failed to persist presence notice for room %s: %v", ev.RoomID, err)
	}
	h.broadcastRoom(members, map[string]interface{}{
		"type":    evMessage,
		"message": notice,
	})
}

func presenceVerb(kind EventKind) string {
	switch kind {
	case EventSessionPause:
		return "paused"
	case EventSessionResume:
		return "resumed studying"
	case EventSessionComplete:
		return "finished studying"
	default:
		return "started studying"
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID] = c
	h.connections[c.UserID] = append(h.connections[c.UserID], c)

	// First connection for this user starts the relay subscription.
	if h.redis != nil && len(h.connections[c.UserID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[c.UserID] = cancel
		go h.subscribeToRelay(ctx, c.UserID)
	}

	log.Printf("WebSocket connected: user %s (devices: %d)", c.UserID, len(h.connections[c.UserID]))
}

// disconnect runs leave cleanup for every joined room, then drops the
// connection. Persistence failures inside the leaves are logged; in-memory
// cleanup always completes.
func (h *Hub) disconnect(c *Client) {
	for _, roomID := range h.rooms.RoomsOf(c.ID) {
		h.leaveRoom(c, roomID, false)
	}
	h.unregister(c)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.close()
	delete(h.clients, c.ID)

	conns := h.connections[c.UserID]
	for i, cl := range conns {
		if cl == c {
			h.connections[c.UserID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[c.UserID]) == 0 {
		delete(h.connections, c.UserID)
		if cancel, ok := h.cancelFuncs[c.UserID]; ok {
			cancel()
			delete(h.cancelFuncs, c.UserID)
		}
	}

	log.Printf("WebSocket disconnected: user %s", c.UserID)
}

func (h *Hub) subscribeToRelay(ctx context.Context, userID uuid.UUID) {
	pubsub := h.redis.Subscribe(ctx, services.SessionChannel(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.fanOut(userID, []byte(msg.Payload))
		}
	}
}

// fanOut delivers a relay payload to the user's connections, skipping the
// device it originated from.
func (h *Hub) fanOut(userID uuid.UUID, payload []byte) {
	var envelope struct {
		Origin string `json:"origin"`
	}
	json.Unmarshal(payload, &envelope)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.connections[userID] {
		if envelope.Origin != "" && client.ID == envelope.Origin {
			continue
		}
		client.enqueueRaw(payload)
	}
}

func (h *Hub) broadcastRoom(members []Participant, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range members {
		if client, ok := h.clients[p.ConnID]; ok {
			client.enqueueRaw(data)
		}
	}
}

func (h *Hub) roomLock(roomID string) *sync.Mutex {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	lock, ok := h.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		h.roomLocks[roomID] = lock
	}
	return lock
}

// lockRoom acquires the room's dispatch lock. A waiter can be holding a
// lock that was pruned while it blocked; the identity re-check makes it
// retry on the fresh entry instead of running beside a new holder.
func (h *Hub) lockRoom(roomID string) *sync.Mutex {
	for {
		lock := h.roomLock(roomID)
		lock.Lock()

		h.locksMu.Lock()
		current := h.roomLocks[roomID]
		h.locksMu.Unlock()
		if current == lock {
			return lock
		}
		lock.Unlock()
	}
}

func (h *Hub) pruneRoomLock(roomID string) {
	h.locksMu.Lock()
	delete(h.roomLocks, roomID)
	h.locksMu.Unlock()
}

func (h *Hub) persistMessage(m *models.ChatMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.messages.Insert(ctx, m)
}

// Close drops every connection. Called on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	log.Printf("WebSocket hub closed (%d rooms still tracked)", h.rooms.RoomCount())
}

func (c *Client) chatMessage(roomID string, kind models.MessageKind, body string) *models.ChatMessage {
	return &models.ChatMessage{
		ID:          uuid.New(),
		RoomID:      roomID,
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		Body:        body,
		Kind:        kind,
		CreatedAt:   time.Now().UTC(),
	}
}

func containsConn(members []Participant, connID string) bool {
	for _, p := range members {
		if p.ConnID == connID {
			return true
		}
	}
	return false
}

func errorEvent(message string) map[string]interface{} {
	return map[string]interface{}{"type": evError, "message": message}
}
