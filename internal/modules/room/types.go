package room

import (
	"errors"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

var errNameRequired = errors.New("room name is required")

// listableStatuses are the status filters accepted by GET /rooms.
var listableStatuses = []string{models.RoomStatusWaiting, models.RoomStatusPlaying, models.RoomStatusPaused}

// CreateRoomDTO is the body of POST /rooms.
type CreateRoomDTO struct {
	Name            string       `json:"name"            binding:"required,max=100"`
	Description     string       `json:"description"     binding:"max=1000"`
	IsPrivate       bool         `json:"isPrivate"`
	Password        string       `json:"password"        binding:"max=72"`
	MaxParticipants int          `json:"maxParticipants" binding:"min=0"`
	Settings        *SettingsDTO `json:"settings"`
}

// SettingsDTO carries optional overrides of the room defaults.
type SettingsDTO struct {
	AllowChat     *bool    `json:"allowChat"`
	AllowUpload   *bool    `json:"allowUpload"`
	Autoplay      *bool    `json:"autoplay"`
	SyncTolerance *float64 `json:"syncTolerance" binding:"omitempty,min=0,max=60"`
}

func (d *SettingsDTO) apply(s models.RoomSettings) models.RoomSettings {
	if d == nil {
		return s
	}
	if d.AllowChat != nil {
		s.AllowChat = *d.AllowChat
	}
	if d.AllowUpload != nil {
		s.AllowUpload = *d.AllowUpload
	}
	if d.Autoplay != nil {
		s.Autoplay = *d.Autoplay
	}
	if d.SyncTolerance != nil {
		s.SyncTolerance = *d.SyncTolerance
	}
	return s
}

func defaultSettings() models.RoomSettings {
	return models.RoomSettings{AllowChat: true, SyncTolerance: 2}
}
