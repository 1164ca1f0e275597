package relay

// Router maps conversation ids to live broadcast groups. Like the registry
// it is owned by the hub's dispatch goroutine and carries no locks.
type Router struct {
	rooms   map[string]map[*Conn]struct{}
	admins  map[*Conn]struct{} // implicit all-admins group
	members map[*Conn]struct{} // every joined connection

	// onDrop is invoked when a slow consumer's buffer is full and an
	// event is discarded instead of blocking the dispatch loop.
	onDrop func(event string)
}

// NewRouter creates an empty room router.
func NewRouter(onDrop func(event string)) *Router {
	if onDrop == nil {
		onDrop = func(string) {}
	}
	return &Router{
		rooms:   make(map[string]map[*Conn]struct{}),
		admins:  make(map[*Conn]struct{}),
		members: make(map[*Conn]struct{}),
		onDrop:  onDrop,
	}
}

// Join adds a connection to a room, creating the room on first member.
func (r *Router) Join(room string, c *Conn) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	r.members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// JoinAdmins adds a connection to the implicit all-admins group, so any
// admin hears about new customer activity regardless of which conversation
// they are viewing.
func (r *Router) JoinAdmins(c *Conn) {
	r.admins[c] = struct{}{}
	r.members[c] = struct{}{}
}

// Leave removes a connection from every group it joined. Empty rooms are
// deleted.
func (r *Router) Leave(c *Conn) {
	for room := range c.rooms {
		if members, ok := r.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.admins, c)
	delete(r.members, c)
}

// RoomSize returns the number of connections in a room.
func (r *Router) RoomSize(room string) int {
	return len(r.rooms[room])
}

// Broadcast delivers an event to every member of a room. exclude, when
// non-nil, skips the originating connection (typing indicators); a nil
// exclude includes the sender so their other open tabs receive the echo.
func (r *Router) Broadcast(room, event string, payload interface{}, exclude *Conn) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	data, err := marshalEvent(event, payload)
	if err != nil {
		return
	}
	for c := range members {
		if c == exclude {
			continue
		}
		if !c.enqueue(data) {
			r.onDrop(event)
		}
	}
}

// BroadcastAdmins delivers an event to every connection in the all-admins
// group.
func (r *Router) BroadcastAdmins(event string, payload interface{}) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		return
	}
	for c := range r.admins {
		if !c.enqueue(data) {
			r.onDrop(event)
		}
	}
}

// BroadcastAll delivers an event to every joined connection. Connections
// that never joined receive nothing.
func (r *Router) BroadcastAll(event string, payload interface{}) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		return
	}
	for c := range r.members {
		if !c.enqueue(data) {
			r.onDrop(event)
		}
	}
}
