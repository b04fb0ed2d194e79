package realtime

import (
	"sync"
	"time"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

// ConnID identifies one live network session.
type ConnID string

// Transport is the per-connection side of the network layer.
// Owned by the gateway; the core never closes it.
type Transport interface {
	// Emit delivers one event to this connection only.
	Emit(event OutboundEvent, payload any) error
	// JoinChannel subscribes this connection to a room's fan-out channel.
	JoinChannel(roomID string)
	// LeaveChannel unsubscribes this connection from a room's fan-out channel.
	LeaveChannel(roomID string)
	// EmitToRoom delivers an event to every member of the room except this connection.
	EmitToRoom(roomID string, event OutboundEvent, payload any)
}

// MembershipState is the join lifecycle of a connection inside one room.
type MembershipState int

const (
	Unjoined MembershipState = iota
	Joining
	Joined
	Leaving
)

func (s MembershipState) String() string {
	switch s {
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	default:
		return "unjoined"
	}
}

// Connection is the core's view of a live session: its transport plus the
// identity and room it is bound to. Bindings are set only by this package.
type Connection struct {
	id        ConnID
	transport Transport

	mu        sync.RWMutex
	user      *models.UserModel
	roomID    string
	state     MembershipState
	lastTouch time.Time
	closed    bool
}

func NewConnection(id ConnID, transport Transport) *Connection {
	return &Connection{id: id, transport: transport}
}

func (c *Connection) ID() ConnID           { return c.id }
func (c *Connection) Transport() Transport { return c.transport }

// User returns the bound identity or nil before authentication.
func (c *Connection) User() *models.UserModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// UserID returns the bound identity id or "".
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return ""
	}
	return c.user.ID
}

// RoomID returns the room this connection is joining, joined to or leaving.
func (c *Connection) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Connection) State() MembershipState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// JoinedRoom returns the room id only when the connection is fully joined.
func (c *Connection) JoinedRoom() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != Joined || c.roomID == "" {
		return "", false
	}
	return c.roomID, true
}

func (c *Connection) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Connection) bindUser(u *models.UserModel) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
}

func (c *Connection) setRoom(roomID string, state MembershipState) {
	c.mu.Lock()
	c.roomID = roomID
	c.state = state
	c.mu.Unlock()
}

func (c *Connection) setState(state MembershipState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Connection) clearRoom() {
	c.mu.Lock()
	c.roomID = ""
	c.state = Unjoined
	c.lastTouch = time.Time{}
	c.mu.Unlock()
}

// touchDue reports whether last-seen should be refreshed and records now if so.
func (c *Connection) touchDue(now time.Time, every time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastTouch) < every {
		return false
	}
	c.lastTouch = now
	return true
}

// MarkClosed flags the transport as gone. Commands still queued for the
// connection are skipped from then on.
func (c *Connection) MarkClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
