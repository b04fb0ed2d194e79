package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ParticipantModel is the per-room membership record. The (room_id, user_id)
// unique index is what makes concurrent joins converge to one row; rows are
// deactivated, never deleted.
type ParticipantModel struct {
	ID       string    `json:"id"       gorm:"type:char(36);primaryKey"`
	RoomID   string    `json:"roomId"   gorm:"type:char(36);not null;uniqueIndex:idx_participant_room_user,priority:1"`
	UserID   string    `json:"userId"   gorm:"type:char(36);not null;uniqueIndex:idx_participant_room_user,priority:2"`
	JoinedAt time.Time `json:"joinedAt" gorm:"not null"`
	IsHost   bool      `json:"isHost"   gorm:"not null;default:false"`
	IsActive bool      `json:"isActive" gorm:"not null;default:false;index"`
	LastSeen time.Time `json:"lastSeen" gorm:"not null"`

	User *UserModel `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (ParticipantModel) TableName() string { return "participants" }

func (p *ParticipantModel) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
