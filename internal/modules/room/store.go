package room

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
)

// Store is the durable room directory. Membership changes lock the room row
// for the length of one transaction, so the capacity check, the participant
// upsert and the recount are serialized per room.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ realtime.Directory = (*Store)(nil)

func (s *Store) LoadRoom(ctx context.Context, roomID string) (*models.RoomModel, error) {
	return loadRoom(s.db.WithContext(ctx), roomID)
}

func loadRoom(db *gorm.DB, roomID string) (*models.RoomModel, error) {
	var room models.RoomModel
	err := db.
		Preload("Participants", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("is_active = ?", true).Order("joined_at ASC")
		}).
		Preload("Participants.User").
		First(&room, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, realtime.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func lockRoom(tx *gorm.DB, roomID string) (*models.RoomModel, error) {
	var room models.RoomModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, realtime.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// recount persists the number of active participant rows as the room's cached count.
func recount(tx *gorm.DB, roomID string) error {
	var active int64
	if err := tx.Model(&models.ParticipantModel{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Count(&active).Error; err != nil {
		return err
	}
	return tx.Model(&models.RoomModel{}).
		Where("id = ?", roomID).
		UpdateColumn("current_participants", active).Error
}

func (s *Store) AdmitParticipant(ctx context.Context, roomID, userID string, admit realtime.AdmitFunc, now time.Time) (realtime.AdmitResult, error) {
	var res realtime.AdmitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}

		var existing *models.ParticipantModel
		var found models.ParticipantModel
		err = tx.Where("room_id = ? AND user_id = ?", roomID, userID).Take(&found).Error
		switch {
		case err == nil:
			existing = &found
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		if err := admit(room, existing); err != nil {
			return err
		}

		isHost := room.HostID == userID
		record := models.ParticipantModel{
			RoomID:   roomID,
			UserID:   userID,
			JoinedAt: now,
			IsHost:   isHost,
			IsActive: true,
			LastSeen: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"is_active": true,
				"is_host":   isHost,
				"last_seen": now,
			}),
		}).Create(&record).Error; err != nil {
			return err
		}

		if err := recount(tx, roomID); err != nil {
			return err
		}

		loaded, err := loadRoom(tx, roomID)
		if err != nil {
			return err
		}
		res = realtime.AdmitResult{Room: loaded, WasActive: existing != nil && existing.IsActive}
		return nil
	})
	if err != nil {
		return realtime.AdmitResult{}, err
	}
	return res, nil
}

func (s *Store) DeactivateParticipant(ctx context.Context, roomID, userID string, now time.Time) (*models.RoomModel, error) {
	var out *models.RoomModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockRoom(tx, roomID); err != nil {
			return err
		}
		if err := tx.Model(&models.ParticipantModel{}).
			Where("room_id = ? AND user_id = ?", roomID, userID).
			Updates(map[string]interface{}{"is_active": false, "last_seen": now}).Error; err != nil {
			return err
		}
		if err := recount(tx, roomID); err != nil {
			return err
		}
		loaded, err := loadRoom(tx, roomID)
		if err != nil {
			return err
		}
		out = loaded
		return nil
	})
	return out, err
}

func (s *Store) TouchParticipant(ctx context.Context, roomID, userID string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.ParticipantModel{}).
		Where("room_id = ? AND user_id = ? AND is_active = ?", roomID, userID, true).
		UpdateColumn("last_seen", now).Error
}

// SavePlayback is a compare-and-set on host_id: a host change between the
// authority check and the write leaves the row untouched.
func (s *Store) SavePlayback(ctx context.Context, roomID, hostID string, update realtime.PlaybackUpdate) error {
	cols := map[string]interface{}{
		"playback_is_playing":   update.Playback.IsPlaying,
		"playback_current_time": update.Playback.CurrentTime,
		"playback_duration":     update.Playback.Duration,
		"playback_last_updated": update.Playback.LastUpdated,
		"status":                update.Status,
	}
	if m := update.Media; m != nil {
		cols["media_name"] = m.Name
		cols["media_size"] = m.Size
		cols["media_type"] = m.Type
		cols["media_url"] = m.URL
	}

	db := s.db.WithContext(ctx)
	res := db.Model(&models.RoomModel{}).
		Where("id = ? AND host_id = ?", roomID, hostID).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// MySQL reports changed rows, so an identical write also lands here.
	var room models.RoomModel
	err := db.Select("id", "host_id").First(&room, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return realtime.ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	if room.HostID != hostID {
		return realtime.ErrNotHost
	}
	return nil
}
