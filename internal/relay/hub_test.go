package relay

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(NewMemoryRegistry(), nil, zerolog.Nop(), nil)
}

func frame(t *testing.T, event string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func join(t *testing.T, h *Hub, c *Conn, userID, role string) {
	t.Helper()
	h.dispatch(c, frame(t, EventJoin, JoinPayload{UserID: userID, Role: role}))
	if !c.joined {
		t.Fatalf("connection for %s did not join", userID)
	}
}

// drain empties a connection's outbound buffer and decodes the envelopes.
func drain(t *testing.T, c *Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case data := <-c.send:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("decode outbound frame: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func countEvents(events []Envelope, name string) int {
	n := 0
	for _, e := range events {
		if e.Event == name {
			n++
		}
	}
	return n
}

func TestSendMessageEchoAndAdminFanout(t *testing.T) {
	h := newTestHub()

	userTab1 := newTestConn()
	userTab2 := newTestConn()
	otherUser := newTestConn()
	admin := newTestConn()

	join(t, h, userTab1, "user-1", "user")
	join(t, h, userTab2, "user-1", "user")
	join(t, h, otherUser, "user-2", "user")
	join(t, h, admin, "admin", "admin")

	// Clear presence announcements from the joins.
	drain(t, userTab1)
	drain(t, userTab2)
	drain(t, otherUser)
	drain(t, admin)

	h.dispatch(userTab1, frame(t, EventSendMessage, SendMessagePayload{
		ConversationID: "user-1",
		Message:        "hello",
		SenderID:       "user-1",
		SenderName:     "Alice",
	}))

	// Both of the sender's tabs receive the room echo.
	for _, c := range []*Conn{userTab1, userTab2} {
		events := drain(t, c)
		if countEvents(events, EventNewMessage) != 1 {
			t.Fatalf("expected one %s in the sender's tabs, got %v", EventNewMessage, events)
		}
	}

	// Admins are notified even though they never joined the room.
	adminEvents := drain(t, admin)
	if countEvents(adminEvents, EventNewUserMessage) != 1 {
		t.Fatalf("expected one %s for the admin, got %v", EventNewUserMessage, adminEvents)
	}
	if countEvents(adminEvents, EventNewMessage) != 0 {
		t.Fatal("admin outside the room must not receive the room echo")
	}

	// A different conversation hears nothing.
	if events := drain(t, otherUser); len(events) != 0 {
		t.Fatalf("unrelated conversation received events: %v", events)
	}
}

func TestAdminMessagesSkipAdminFanout(t *testing.T) {
	h := newTestHub()

	user := newTestConn()
	admin1 := newTestConn()
	admin2 := newTestConn()

	join(t, h, user, "user-1", "user")
	join(t, h, admin1, "admin", "admin")
	join(t, h, admin2, "admin", "admin")
	drain(t, user)
	drain(t, admin1)
	drain(t, admin2)

	// Admin replies into the customer's conversation room. Admins are not
	// room members, so only the customer sees the echo and no
	// new-user-message is produced.
	h.dispatch(admin1, frame(t, EventSendMessage, SendMessagePayload{
		ConversationID: "user-1",
		Message:        "how can I help?",
		SenderID:       "admin",
		SenderName:     "Support",
	}))

	userEvents := drain(t, user)
	if countEvents(userEvents, EventNewMessage) != 1 {
		t.Fatalf("customer should receive the reply, got %v", userEvents)
	}
	if n := countEvents(drain(t, admin2), EventNewUserMessage); n != 0 {
		t.Fatalf("admin reply produced %d new-user-message events", n)
	}
}

func TestSendMessageRejectsIncompletePayload(t *testing.T) {
	h := newTestHub()

	user := newTestConn()
	admin := newTestConn()
	join(t, h, user, "user-1", "user")
	join(t, h, admin, "admin", "admin")
	drain(t, user)
	drain(t, admin)

	h.dispatch(user, frame(t, EventSendMessage, SendMessagePayload{
		ConversationID: "user-1",
		Message:        "", // required
		SenderID:       "user-1",
		SenderName:     "Alice",
	}))

	if events := drain(t, admin); len(events) != 0 {
		t.Fatalf("incomplete payload must be dropped, admin got %v", events)
	}
}

func TestTypingExcludesOrigin(t *testing.T) {
	h := newTestHub()

	tab1 := newTestConn()
	tab2 := newTestConn()
	join(t, h, tab1, "user-1", "user")
	join(t, h, tab2, "user-1", "user")
	drain(t, tab1)
	drain(t, tab2)

	h.dispatch(tab1, frame(t, EventTyping, TypingPayload{ConversationID: "user-1", UserName: "Alice"}))

	if events := drain(t, tab1); len(events) != 0 {
		t.Fatalf("typing indicator echoed to its origin: %v", events)
	}
	events := drain(t, tab2)
	if countEvents(events, EventUserTyping) != 1 {
		t.Fatalf("expected %s on the second tab, got %v", EventUserTyping, events)
	}
}

func TestAdminTypingRequiresStaffRole(t *testing.T) {
	h := newTestHub()

	user := newTestConn()
	watcher := newTestConn()
	join(t, h, user, "user-1", "user")
	join(t, h, watcher, "user-1", "user")
	drain(t, user)
	drain(t, watcher)

	// A customer spoofing admin-typing is ignored.
	h.dispatch(user, frame(t, EventAdminTyping, TypingPayload{ConversationID: "user-1", AdminName: "Support"}))
	if events := drain(t, watcher); len(events) != 0 {
		t.Fatalf("non-staff admin-typing must be dropped, got %v", events)
	}

	admin := newTestConn()
	join(t, h, admin, "admin", "admin")
	h.router.Join("user-1", admin)
	drain(t, user)
	drain(t, watcher)
	drain(t, admin)

	h.dispatch(admin, frame(t, EventAdminTyping, TypingPayload{ConversationID: "user-1", AdminName: "Support"}))
	if countEvents(drain(t, watcher), EventAdminTyping) != 1 {
		t.Fatal("room members should see admin-typing")
	}
	if events := drain(t, admin); len(events) != 0 {
		t.Fatalf("admin-typing echoed to its origin: %v", events)
	}
}

func TestMessageStatusRouting(t *testing.T) {
	h := newTestHub()

	user := newTestConn()
	admin := newTestConn()
	join(t, h, user, "user-1", "user")
	join(t, h, admin, "admin", "admin")
	drain(t, user)
	drain(t, admin)

	// Delivery receipts go to the support team.
	h.dispatch(user, frame(t, EventMessageDelivered, MessageStatusPayload{
		MessageID:      "01HV0000000000000000000000",
		ConversationID: "user-1",
	}))

	adminEvents := drain(t, admin)
	if countEvents(adminEvents, EventMessageStatus) != 1 {
		t.Fatalf("expected delivery receipt at admin, got %v", adminEvents)
	}
	var status MessageStatusPayload
	if err := json.Unmarshal(adminEvents[0].Payload, &status); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	if status.Status != StatusDelivered {
		t.Fatalf("status = %q, want %q", status.Status, StatusDelivered)
	}

	// Read receipts go back into the conversation room.
	h.dispatch(admin, frame(t, EventMessageRead, MessageStatusPayload{
		MessageID:      "01HV0000000000000000000000",
		ConversationID: "user-1",
	}))

	userEvents := drain(t, user)
	if countEvents(userEvents, EventMessageStatus) != 1 {
		t.Fatalf("expected read receipt in the room, got %v", userEvents)
	}
	if err := json.Unmarshal(userEvents[0].Payload, &status); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	if status.Status != StatusRead {
		t.Fatalf("status = %q, want %q", status.Status, StatusRead)
	}
}

func TestUnjoinedConnectionsAreIgnored(t *testing.T) {
	h := newTestHub()

	member := newTestConn()
	join(t, h, member, "user-1", "user")
	drain(t, member)

	stranger := newTestConn()
	h.dispatch(stranger, frame(t, EventSendMessage, SendMessagePayload{
		ConversationID: "user-1",
		Message:        "hi",
		SenderID:       "user-1",
		SenderName:     "Mallory",
	}))

	if events := drain(t, member); len(events) != 0 {
		t.Fatalf("events from an unjoined connection leaked: %v", events)
	}
}

func TestRejoinCannotSwitchIdentity(t *testing.T) {
	h := newTestHub()

	c := newTestConn()
	join(t, h, c, "user-1", "user")

	// A second join on a live connection is ignored: no new binding, no new
	// room, no role escalation.
	h.dispatch(c, frame(t, EventJoin, JoinPayload{UserID: "user-2", Role: "admin"}))

	if c.identityID != "user-1" {
		t.Fatalf("identity switched to %q", c.identityID)
	}
	if c.role.IsStaff() {
		t.Fatal("re-join escalated the connection's role")
	}
	if h.router.RoomSize("user-2") != 0 {
		t.Fatal("re-join created a room membership for the new identity")
	}
	if h.router.RoomSize("user-1") != 1 {
		t.Fatal("original room membership lost")
	}

	// The registry still unbinds cleanly on disconnect.
	h.handleDisconnect(c)
	if h.router.RoomSize("user-1") != 0 {
		t.Fatal("disconnect did not clear the original membership")
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	h := newTestHub()

	c := newTestConn()
	join(t, h, c, "user-1", "user")
	drain(t, c)

	h.dispatch(c, []byte("not json"))
	h.dispatch(c, []byte(`{"event":"join","payload":"nope"}`))
	h.dispatch(c, frame(t, "no-such-event", struct{}{}))

	if events := drain(t, c); len(events) != 0 {
		t.Fatalf("malformed frames produced output: %v", events)
	}
}

func TestAdminStatusBroadcastOnEdgesOnly(t *testing.T) {
	h := newTestHub()

	user := newTestConn()
	join(t, h, user, "user-1", "user")
	drain(t, user)

	admin1 := newTestConn()
	admin2 := newTestConn()

	join(t, h, admin1, "admin", "admin")
	events := drain(t, user)
	if countEvents(events, EventAdminStatus) != 1 {
		t.Fatalf("first admin join should announce admin-status, got %v", events)
	}
	var status AdminStatusPayload
	if err := json.Unmarshal(events[0].Payload, &status); err != nil {
		t.Fatalf("decode admin-status: %v", err)
	}
	if !status.Online {
		t.Fatal("admin-status should report online")
	}

	// A second admin connection is not an edge.
	join(t, h, admin2, "admin", "admin")
	if n := countEvents(drain(t, user), EventAdminStatus); n != 0 {
		t.Fatalf("second admin join announced admin-status %d times", n)
	}

	h.handleDisconnect(admin1)
	if n := countEvents(drain(t, user), EventAdminStatus); n != 0 {
		t.Fatal("offline announcement before the last admin left")
	}

	h.handleDisconnect(admin2)
	events = drain(t, user)
	if countEvents(events, EventAdminStatus) != 1 {
		t.Fatalf("last admin leaving should announce admin-status, got %v", events)
	}
	if err := json.Unmarshal(events[0].Payload, &status); err != nil {
		t.Fatalf("decode admin-status: %v", err)
	}
	if status.Online {
		t.Fatal("admin-status should report offline")
	}
}

func TestCustomerPresenceReachesAdminsOnly(t *testing.T) {
	h := newTestHub()

	admin := newTestConn()
	bystander := newTestConn()
	join(t, h, admin, "admin", "admin")
	join(t, h, bystander, "user-2", "user")
	drain(t, admin)
	drain(t, bystander)

	user := newTestConn()
	join(t, h, user, "user-1", "user")

	adminEvents := drain(t, admin)
	if countEvents(adminEvents, EventUserPresence) != 1 {
		t.Fatalf("admin should see the customer come online, got %v", adminEvents)
	}
	if events := drain(t, bystander); len(events) != 0 {
		t.Fatalf("customer presence leaked to another customer: %v", events)
	}

	h.handleDisconnect(user)
	adminEvents = drain(t, admin)
	if countEvents(adminEvents, EventUserPresence) != 1 {
		t.Fatalf("admin should see the customer go offline, got %v", adminEvents)
	}
	var presence UserPresencePayload
	if err := json.Unmarshal(adminEvents[0].Payload, &presence); err != nil {
		t.Fatalf("decode user-presence: %v", err)
	}
	if presence.Online || presence.UserID != "user-1" {
		t.Fatalf("unexpected presence payload: %+v", presence)
	}
}

func TestDisconnectClearsRoomMembership(t *testing.T) {
	h := newTestHub()

	c := newTestConn()
	join(t, h, c, "user-1", "user")
	if h.router.RoomSize("user-1") != 1 {
		t.Fatal("join should place the connection in its identity room")
	}

	h.handleDisconnect(c)
	if h.router.RoomSize("user-1") != 0 {
		t.Fatal("disconnect should empty the room")
	}
	if _, ok := <-c.send; ok {
		t.Fatal("send channel should be closed after disconnect")
	}
}
