package relay

import (
	"time"

	"github.com/rianhasansiam/digicam/internal/models"
)

// AdminTransition marks an edge of the aggregated admin presence.
type AdminTransition int

const (
	AdminNoChange AdminTransition = iota
	AdminCameOnline
	AdminWentOffline
)

// PresenceChange describes what a register/unregister call changed.
// Broadcast decisions key off the transition edges, never off raw counts:
// a second admin tab coming up is not a new "admin online".
type PresenceChange struct {
	IdentityID string
	Role       models.Role
	Online     bool
	LastSeen   time.Time

	// AdminTransition is set on the 0→1 and 1→0 edges of the admin
	// connection set.
	AdminTransition AdminTransition

	// IdentityChanged is true when this identity's union presence flipped,
	// i.e. its first connection arrived or its last one left.
	IdentityChanged bool
}

// Registry tracks which connection belongs to which identity and role.
// The in-memory implementation is process-local state; the interface exists
// so a shared backing (key-value store, pub/sub) can replace it without
// touching relay logic when the relay scales past one process.
type Registry interface {
	// Register binds a connection to an identity and role. Idempotent per
	// connection.
	Register(c *Conn, identityID string, role models.Role) PresenceChange

	// Unregister removes a connection binding by reverse lookup. Unknown
	// connections are a no-op (disconnect is best-effort); ok is false.
	Unregister(c *Conn) (change PresenceChange, ok bool)

	// AdminOnline reports whether at least one admin connection is live.
	AdminOnline() bool

	// LastSeen returns the recorded last-seen time for an identity.
	LastSeen(identityID string) (time.Time, bool)
}

type identityEntry struct {
	role     models.Role
	conns    map[*Conn]struct{}
	lastSeen time.Time
}

// memoryRegistry is the single-process Registry. It is only ever touched
// from the hub's dispatch goroutine, so it carries no locks.
type memoryRegistry struct {
	identities map[string]*identityEntry
	byConn     map[*Conn]string // reverse index: connection -> identity
	admins     map[*Conn]struct{}
}

// NewMemoryRegistry creates the in-process presence registry.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{
		identities: make(map[string]*identityEntry),
		byConn:     make(map[*Conn]string),
		admins:     make(map[*Conn]struct{}),
	}
}

func (r *memoryRegistry) Register(c *Conn, identityID string, role models.Role) PresenceChange {
	now := time.Now().UTC()
	change := PresenceChange{
		IdentityID: identityID,
		Role:       role,
		Online:     true,
		LastSeen:   now,
	}

	if _, bound := r.byConn[c]; bound {
		// Already registered; a repeated join is a no-op.
		return change
	}
	r.byConn[c] = identityID

	entry, ok := r.identities[identityID]
	if !ok {
		entry = &identityEntry{role: role, conns: make(map[*Conn]struct{})}
		r.identities[identityID] = entry
	}
	entry.role = role
	entry.lastSeen = now

	change.IdentityChanged = len(entry.conns) == 0
	entry.conns[c] = struct{}{}

	if role == models.RoleAdmin {
		if len(r.admins) == 0 {
			change.AdminTransition = AdminCameOnline
		}
		r.admins[c] = struct{}{}
	}

	return change
}

func (r *memoryRegistry) Unregister(c *Conn) (PresenceChange, bool) {
	identityID, bound := r.byConn[c]
	if !bound {
		return PresenceChange{}, false
	}
	delete(r.byConn, c)

	now := time.Now().UTC()
	change := PresenceChange{IdentityID: identityID, LastSeen: now}

	entry := r.identities[identityID]
	if entry != nil {
		delete(entry.conns, c)
		entry.lastSeen = now
		change.Role = entry.role
		change.Online = len(entry.conns) > 0
		change.IdentityChanged = len(entry.conns) == 0
	}

	if _, isAdmin := r.admins[c]; isAdmin {
		delete(r.admins, c)
		if len(r.admins) == 0 {
			change.AdminTransition = AdminWentOffline
		}
	}

	return change, true
}

func (r *memoryRegistry) AdminOnline() bool {
	return len(r.admins) > 0
}

func (r *memoryRegistry) LastSeen(identityID string) (time.Time, bool) {
	entry, ok := r.identities[identityID]
	if !ok {
		return time.Time{}, false
	}
	return entry.lastSeen, true
}
