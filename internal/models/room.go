package models

import "time"

// Room statuses. Status is derived from playback state by the playback authority.
const (
	RoomStatusWaiting = "waiting"
	RoomStatusPlaying = "playing"
	RoomStatusPaused  = "paused"
	RoomStatusEnded   = "ended"
)

// PlaybackState is the shared clock of a room.
type PlaybackState struct {
	IsPlaying   bool      `json:"isPlaying"   gorm:"not null;default:false"`
	CurrentTime float64   `json:"currentTime" gorm:"not null;default:0"`
	Duration    float64   `json:"duration"    gorm:"not null;default:0"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// RoomSettings are advisory knobs read by clients. SyncTolerance is never
// enforced server side.
//
// AllowChat and SyncTolerance carry no column default: gorm skips zero values
// of defaulted fields on insert, which would turn false/0 into the default.
// Callers fill them from the room service defaults.
type RoomSettings struct {
	AllowChat     bool    `json:"allowChat"     gorm:"not null"`
	AllowUpload   bool    `json:"allowUpload"   gorm:"not null;default:false"`
	Autoplay      bool    `json:"autoplay"      gorm:"not null;default:false"`
	SyncTolerance float64 `json:"syncTolerance" gorm:"not null"`
}

// MediaInfo references the movie being watched. Bytes never pass through here.
type MediaInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"  gorm:"type:text"`
}

// RoomModel is the durable room record. CurrentParticipants caches the number
// of active participant rows and is recomputed after every membership change.
type RoomModel struct {
	Base
	Name                string             `json:"name"                gorm:"not null"`
	Description         string             `json:"description"         gorm:"type:text"`
	HostID              string             `json:"hostId"              gorm:"type:char(36);index;not null"`
	IsPrivate           bool               `json:"isPrivate"           gorm:"not null;default:false"`
	Password            string             `json:"-"`
	MaxParticipants     int                `json:"maxParticipants"     gorm:"not null;default:10"`
	CurrentParticipants int                `json:"currentParticipants" gorm:"not null;default:0"`
	Status              string             `json:"status"              gorm:"size:16;not null;default:'waiting'"`
	Playback            PlaybackState      `json:"playback"            gorm:"embedded;embeddedPrefix:playback_"`
	Settings            RoomSettings       `json:"settings"            gorm:"embedded;embeddedPrefix:setting_"`
	Media               MediaInfo          `json:"media"               gorm:"embedded;embeddedPrefix:media_"`
	Participants        []ParticipantModel `json:"participants,omitempty" gorm:"foreignKey:RoomID"`
}

func (RoomModel) TableName() string { return "rooms" }

// HasPassword reports whether joining requires a password.
func (r *RoomModel) HasPassword() bool { return r.Password != "" }
