package realtime

import (
	"context"
	"time"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

// AdmitFunc decides whether userID may become active in room. existing is the
// caller's participant record, or nil. It runs inside the store's transaction
// while the room row is locked.
type AdmitFunc func(room *models.RoomModel, existing *models.ParticipantModel) error

// AdmitResult is the outcome of a successful admission.
type AdmitResult struct {
	// Room is reloaded after the upsert, with active participants and their users.
	Room *models.RoomModel
	// WasActive is true when the identity already had an active record.
	WasActive bool
}

// PlaybackUpdate is the full set of playback columns a host mutation writes.
type PlaybackUpdate struct {
	Playback models.PlaybackState
	Status   string
	Media    *models.MediaInfo
}

// Directory is the durable room store. Every mutating method is a single
// atomic operation keyed by room id and user id.
type Directory interface {
	// LoadRoom returns the room with its active participants, or ErrRoomNotFound.
	LoadRoom(ctx context.Context, roomID string) (*models.RoomModel, error)
	// AdmitParticipant upserts the (room, user) record as active and recomputes
	// the active count, provided admit accepts.
	AdmitParticipant(ctx context.Context, roomID, userID string, admit AdmitFunc, now time.Time) (AdmitResult, error)
	// DeactivateParticipant marks the record inactive, refreshes last seen and
	// recomputes the active count. The returned room carries active participants.
	DeactivateParticipant(ctx context.Context, roomID, userID string, now time.Time) (*models.RoomModel, error)
	// TouchParticipant refreshes last seen on an active record.
	TouchParticipant(ctx context.Context, roomID, userID string, now time.Time) error
	// SavePlayback writes update only if hostID is still the room's host;
	// otherwise it returns ErrNotHost.
	SavePlayback(ctx context.Context, roomID, hostID string, update PlaybackUpdate) error
}

// RoomPresence leases (room, user, connection) bindings across instances.
// The registry only sees local connections; with several instances a
// participant stays active while any instance still holds a lease.
type RoomPresence interface {
	// Enter records conn as joined to roomID for userID. Repeating it renews
	// the lease.
	Enter(ctx context.Context, roomID, userID string, conn ConnID) error
	// Exit drops conn and returns the number of live leases userID still
	// holds in roomID on any instance.
	Exit(ctx context.Context, roomID, userID string, conn ConnID) (int, error)
}

// UserStore persists presence on the durable identity.
type UserStore interface {
	SetOnline(ctx context.Context, userID string, online bool, at time.Time) error
}

// Verifier resolves a presented credential to a durable identity. Failures
// wrap ErrInvalidToken.
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.UserModel, error)
}

// RelayMessage is a targeted message that may need delivery on another instance.
type RelayMessage struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	RoomID  string         `json:"roomId"`
	Event   OutboundEvent  `json:"event"`
	Payload SignalEnvelope `json:"payload"`
}

// RelayForwarder hands relay messages to peer instances. Implementations must
// not block.
type RelayForwarder interface {
	ForwardRelay(msg RelayMessage)
}
