package models

import "time"

// UserModel is the durable identity. Accounts are provisioned by the auth
// service; this process only reads them and maintains presence columns.
type UserModel struct {
	Base
	Name     string     `json:"name"      gorm:"not null"`
	Email    string     `json:"email"     gorm:"uniqueIndex;size:191"`
	Avatar   string     `json:"avatar"`
	GoogleID string     `json:"-"         gorm:"index;size:191"`
	IsOnline bool       `json:"isOnline"  gorm:"not null;default:false"`
	LastSeen *time.Time `json:"lastSeen"`
}

func (UserModel) TableName() string { return "users" }
