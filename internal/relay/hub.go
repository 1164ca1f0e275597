package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rianhasansiam/digicam/internal/metrics"
	"github.com/rianhasansiam/digicam/internal/models"
)

// PresenceMirror receives presence snapshots for out-of-process readers.
// Implemented by store.RedisStore; nil disables mirroring.
type PresenceMirror interface {
	SetPresence(ctx context.Context, identityID string, role models.Role, online bool, lastSeen time.Time) error
}

type inboundEvent struct {
	conn *Conn
	data []byte
}

// Hub is the relay server: a single dispatch loop handling every inbound
// event to completion before the next, so the registry and router need no
// locks. The hub only fans out live events; it never persists anything —
// the durable record is written on the REST path, and a relay outage loses
// live delivery only.
type Hub struct {
	registry Registry
	router   *Router
	mirror   PresenceMirror
	log      zerolog.Logger

	inbound    chan inboundEvent
	disconnect chan *Conn

	upgrader websocket.Upgrader
}

// NewHub creates a relay hub. allowedOrigins gates websocket upgrades; an
// empty list allows any origin (development).
func NewHub(registry Registry, mirror PresenceMirror, logger zerolog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		registry:   registry,
		mirror:     mirror,
		log:        logger.With().Str("component", "relay").Logger(),
		inbound:    make(chan inboundEvent, 256),
		disconnect: make(chan *Conn, 64),
	}
	h.router = NewRouter(func(event string) {
		metrics.RelayDroppedEvents.WithLabelValues(event).Inc()
	})
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		return set[origin]
	}
}

// ServeWS upgrades an HTTP request into a relay connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(h, ws)
	metrics.RelayConnections.Inc()

	go c.writePump()
	go c.readPump()
}

// Run processes events until the context is cancelled. All shared state is
// mutated only from this goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.inbound:
			h.dispatch(ev.conn, ev.data)
		case c := <-h.disconnect:
			h.handleDisconnect(c)
		}
	}
}

// dispatch routes one inbound frame. Malformed events and events from
// connections that never joined are dropped silently: the relay optimizes
// for liveness, real validation lives on the durable write path.
func (h *Hub) dispatch(c *Conn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Debug().Err(err).Msg("dropping malformed frame")
		return
	}
	metrics.RelayEvents.WithLabelValues(env.Event).Inc()

	if env.Event != EventJoin && !c.joined {
		h.log.Debug().Str("event", env.Event).Msg("dropping event from unjoined connection")
		return
	}

	switch env.Event {
	case EventJoin:
		h.handleJoin(c, env.Payload)
	case EventSendMessage:
		h.handleSendMessage(c, env.Payload)
	case EventTyping:
		h.handleTyping(c, env.Payload, EventUserTyping)
	case EventStopTyping:
		h.handleTyping(c, env.Payload, EventUserStopTyping)
	case EventAdminTyping:
		h.handleAdminTyping(c, env.Payload, EventAdminTyping)
	case EventAdminStopTyping:
		h.handleAdminTyping(c, env.Payload, EventAdminStopTyping)
	case EventMessageDelivered:
		h.handleMessageStatus(c, env.Payload, StatusDelivered)
	case EventMessageRead:
		h.handleMessageStatus(c, env.Payload, StatusRead)
	default:
		h.log.Debug().Str("event", env.Event).Msg("dropping unknown event")
	}
}

func (h *Hub) handleJoin(c *Conn, raw json.RawMessage) {
	// A connection binds to exactly one identity for its lifetime; switching
	// identities requires a reconnect, or registry and router would disagree.
	if c.joined {
		h.log.Debug().Str("user_id", c.identityID).Msg("dropping join from already joined connection")
		return
	}

	var p JoinPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == "" {
		return
	}

	role := models.ParseRole(p.Role)
	c.identityID = p.UserID
	c.role = role
	c.joined = true

	change := h.registry.Register(c, p.UserID, role)

	// Every identity's own id is also its room: private messages reach all
	// of that identity's open tabs.
	h.router.Join(p.UserID, c)
	if role == models.RoleAdmin {
		h.router.JoinAdmins(c)
	}

	h.announce(change)
	h.mirrorPresence(change)

	h.log.Info().Str("user_id", p.UserID).Str("role", string(role)).Msg("connection joined")
}

func (h *Hub) handleSendMessage(c *Conn, raw json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if p.ConversationID == "" || p.Message == "" || p.SenderID == "" || p.SenderName == "" {
		return
	}

	// Room echo includes the sender so their other open tabs converge on
	// the same canonical copy.
	h.router.Broadcast(p.ConversationID, EventNewMessage, NewMessagePayload{
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		SenderName:     p.SenderName,
		Message:        p.Message,
		Timestamp:      time.Now().UTC(),
	}, nil)

	// Customer messages additionally fan out to every admin, whatever
	// conversation they are currently viewing.
	if !c.role.IsStaff() {
		h.router.BroadcastAdmins(EventNewUserMessage, p)
	}
}

func (h *Hub) handleTyping(c *Conn, raw json.RawMessage, outEvent string) {
	var p TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ConversationID == "" {
		return
	}
	h.router.Broadcast(p.ConversationID, outEvent, p, c)
}

func (h *Hub) handleAdminTyping(c *Conn, raw json.RawMessage, outEvent string) {
	if !c.role.IsStaff() {
		return
	}
	var p TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ConversationID == "" {
		return
	}
	h.router.Broadcast(p.ConversationID, outEvent, p, c)
}

func (h *Hub) handleMessageStatus(c *Conn, raw json.RawMessage, status string) {
	var p MessageStatusPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.MessageID == "" || p.ConversationID == "" {
		return
	}
	p.Status = status

	switch status {
	case StatusDelivered:
		h.router.BroadcastAdmins(EventMessageStatus, p)
	case StatusRead:
		h.router.Broadcast(p.ConversationID, EventMessageStatus, p, nil)
	}
}

func (h *Hub) handleDisconnect(c *Conn) {
	metrics.RelayConnections.Dec()

	if c.joined {
		change, ok := h.registry.Unregister(c)
		h.router.Leave(c)
		if ok {
			h.announce(change)
			h.mirrorPresence(change)
			h.log.Info().Str("user_id", c.identityID).Msg("connection left")
		}
	}

	close(c.send)
}

// announce emits the presence broadcasts a change calls for: admin-status
// to everyone on the admin 0→1/1→0 edges, and user-presence to admins only
// when a customer's union presence flips.
func (h *Hub) announce(change PresenceChange) {
	switch change.AdminTransition {
	case AdminCameOnline:
		h.router.BroadcastAll(EventAdminStatus, AdminStatusPayload{Online: true, LastSeen: change.LastSeen})
	case AdminWentOffline:
		h.router.BroadcastAll(EventAdminStatus, AdminStatusPayload{Online: false, LastSeen: change.LastSeen})
	}

	if change.Role != models.RoleAdmin && change.IdentityChanged {
		h.router.BroadcastAdmins(EventUserPresence, UserPresencePayload{
			UserID:   change.IdentityID,
			Online:   change.Online,
			LastSeen: change.LastSeen,
		})
	}
}

// mirrorPresence pushes a snapshot to the mirror off the dispatch loop so
// slow Redis writes never stall event handling.
func (h *Hub) mirrorPresence(change PresenceChange) {
	if h.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.mirror.SetPresence(ctx, change.IdentityID, change.Role, change.Online, change.LastSeen); err != nil {
			h.log.Warn().Err(err).Str("user_id", change.IdentityID).Msg("presence mirror write failed")
		}
	}()
}
