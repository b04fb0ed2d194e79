package realtime

import (
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

// CheckJoin evaluates join eligibility for userID against the locked room row.
// An identity that is already active passes unchanged, so rejoining from a new
// tab never trips the capacity check.
func CheckJoin(room *models.RoomModel, existing *models.ParticipantModel, userID, password string) error {
	if existing != nil && existing.IsActive {
		return nil
	}
	if room.CurrentParticipants >= room.MaxParticipants {
		return ErrRoomFull
	}
	isHost := room.HostID == userID
	if room.IsPrivate && existing == nil && !isHost {
		return ErrPrivateRoom
	}
	if room.HasPassword() && !isHost {
		// a malformed stored hash is treated as a mismatch
		if bcrypt.CompareHashAndPassword([]byte(room.Password), []byte(password)) != nil {
			return ErrInvalidPassword
		}
	}
	return nil
}

// UserView is the public face of an identity inside room events.
type UserView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"isOnline"`
}

func NewUserView(u *models.UserModel) UserView {
	if u == nil {
		return UserView{}
	}
	return UserView{ID: u.ID, Name: u.Name, Avatar: u.Avatar, IsOnline: u.IsOnline}
}

// ParticipantView is one roster entry.
type ParticipantView struct {
	UserID   string    `json:"userId"`
	User     UserView  `json:"user"`
	IsHost   bool      `json:"isHost"`
	IsActive bool      `json:"isActive"`
	JoinedAt time.Time `json:"joinedAt"`
	LastSeen time.Time `json:"lastSeen"`
}

// RoomSnapshot is the full state sent to a joining connection.
type RoomSnapshot struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Description         string               `json:"description"`
	HostID              string               `json:"hostId"`
	IsPrivate           bool                 `json:"isPrivate"`
	HasPassword         bool                 `json:"hasPassword"`
	MaxParticipants     int                  `json:"maxParticipants"`
	CurrentParticipants int                  `json:"currentParticipants"`
	Status              string               `json:"status"`
	Playback            models.PlaybackState `json:"playback"`
	Settings            models.RoomSettings  `json:"settings"`
	Media               models.MediaInfo     `json:"media"`
	Participants        []ParticipantView    `json:"participants"`
}

// NewRoomSnapshot builds the public snapshot. Only active participants are listed.
func NewRoomSnapshot(room *models.RoomModel) RoomSnapshot {
	return RoomSnapshot{
		ID:                  room.ID,
		Name:                room.Name,
		Description:         room.Description,
		HostID:              room.HostID,
		IsPrivate:           room.IsPrivate,
		HasPassword:         room.HasPassword(),
		MaxParticipants:     room.MaxParticipants,
		CurrentParticipants: room.CurrentParticipants,
		Status:              room.Status,
		Playback:            room.Playback,
		Settings:            room.Settings,
		Media:               room.Media,
		Participants:        activeRoster(room),
	}
}

func activeRoster(room *models.RoomModel) []ParticipantView {
	out := make([]ParticipantView, 0, len(room.Participants))
	for i := range room.Participants {
		p := &room.Participants[i]
		if !p.IsActive {
			continue
		}
		out = append(out, ParticipantView{
			UserID:   p.UserID,
			User:     NewUserView(p.User),
			IsHost:   p.UserID == room.HostID,
			IsActive: true,
			JoinedAt: p.JoinedAt,
			LastSeen: p.LastSeen,
		})
	}
	return out
}

// RoomJoinedPayload answers a successful join.
type RoomJoinedPayload struct {
	Room RoomSnapshot `json:"room"`
	// Self is the joining identity, so clients need no extra lookup.
	Self UserView `json:"self"`
}

// MembershipPayload is sent as user-joined and user-left.
type MembershipPayload struct {
	RoomID string   `json:"roomId"`
	User   UserView `json:"user"`
	Count  int      `json:"count"`
}

// ParticipantsPayload is the canonical roster broadcast after any membership change.
type ParticipantsPayload struct {
	RoomID       string            `json:"roomId"`
	Participants []ParticipantView `json:"participants"`
	Count        int               `json:"count"`
}

func NewParticipantsPayload(room *models.RoomModel) ParticipantsPayload {
	roster := activeRoster(room)
	return ParticipantsPayload{RoomID: room.ID, Participants: roster, Count: room.CurrentParticipants}
}

// RoomLeftPayload confirms an explicit leave.
type RoomLeftPayload struct {
	RoomID string `json:"roomId"`
}

// PlaybackPayload is fanned out for every accepted host mutation.
type PlaybackPayload struct {
	RoomID      string            `json:"roomId"`
	From        string            `json:"from"`
	IsPlaying   bool              `json:"isPlaying"`
	CurrentTime float64           `json:"currentTime"`
	Time        float64           `json:"time"`
	Duration    float64           `json:"duration"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Status      string            `json:"status"`
	Media       *models.MediaInfo `json:"media,omitempty"`
}

func newPlaybackPayload(roomID, from string, u PlaybackUpdate) PlaybackPayload {
	return PlaybackPayload{
		RoomID:      roomID,
		From:        from,
		IsPlaying:   u.Playback.IsPlaying,
		CurrentTime: u.Playback.CurrentTime,
		Time:        u.Playback.CurrentTime,
		Duration:    u.Playback.Duration,
		LastUpdated: u.Playback.LastUpdated,
		Status:      u.Status,
		Media:       u.Media,
	}
}

// SignalEnvelope is what a relay target receives.
type SignalEnvelope struct {
	From    string          `json:"from"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

// ChatEnvelope is what room members receive for chat and voice messages.
type ChatEnvelope struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"roomId"`
	From      string          `json:"from"`
	User      UserView        `json:"user"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload is the body of the outbound error event.
type ErrorPayload struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Op      InboundEvent `json:"op"`
}

// AuthenticatedPayload confirms a bound identity.
type AuthenticatedPayload struct {
	User UserView `json:"user"`
}

// AuthErrorPayload rejects a credential.
type AuthErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ApplyPlayback computes the new playback columns for a host command. It does
// not interpolate time: a play or pause without currentTime keeps the stored
// clock.
func ApplyPlayback(room *models.RoomModel, cmd Command, now time.Time) (PlaybackUpdate, OutboundEvent, error) {
	state := room.Playback
	update := PlaybackUpdate{Status: room.Status}

	var event OutboundEvent
	switch c := cmd.(type) {
	case SetPlaying:
		state.IsPlaying = c.Playing
		if c.CurrentTime != nil {
			state.CurrentTime = *c.CurrentTime
		}
		if c.Duration != nil && *c.Duration >= 0 {
			state.Duration = *c.Duration
		}
		if c.Playing {
			update.Status = models.RoomStatusPlaying
			event = OutVideoPlay
		} else {
			update.Status = models.RoomStatusPaused
			event = OutVideoPause
		}
	case Seek:
		state.CurrentTime = c.Time
		if c.Duration != nil && *c.Duration >= 0 {
			state.Duration = *c.Duration
		}
		event = OutVideoSeek
	case SetMedia:
		media := c.Media
		update.Media = &media
		state.IsPlaying = false
		state.CurrentTime = 0
		state.Duration = 0
		if c.Duration != nil && *c.Duration >= 0 {
			state.Duration = *c.Duration
		}
		update.Status = models.RoomStatusWaiting
		event = OutVideoMetadata
	default:
		return PlaybackUpdate{}, "", ErrBadPayload
	}

	state.LastUpdated = now
	update.Playback = state
	return update, event, nil
}
