package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/pagination"
	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/response"
)

// Service implements room CRUD. Membership and playback never go through here.
type Service struct {
	db              *gorm.DB
	store           *Store
	logger          *zap.Logger
	defaultCapacity int
	maxCapacity     int
}

func NewService(db *gorm.DB, store *Store, logger *zap.Logger, defaultCapacity, maxCapacity int) *Service {
	return &Service{
		db:              db,
		store:           store,
		logger:          logger,
		defaultCapacity: defaultCapacity,
		maxCapacity:     maxCapacity,
	}
}

// Create stores a new room owned by hostID. The host gets an inactive
// participant record so a private room always readmits them.
func (s *Service) Create(ctx context.Context, hostID string, dto CreateRoomDTO) (*models.RoomModel, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, errNameRequired
	}

	room := &models.RoomModel{
		Name:            name,
		Description:     strings.TrimSpace(dto.Description),
		HostID:          hostID,
		IsPrivate:       dto.IsPrivate,
		MaxParticipants: s.capacity(dto.MaxParticipants),
		Status:          models.RoomStatusWaiting,
		Settings:        dto.Settings.apply(defaultSettings()),
	}
	if dto.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		room.Password = string(hash)
	}

	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		host := models.ParticipantModel{
			RoomID:   room.ID,
			UserID:   hostID,
			JoinedAt: now,
			IsHost:   true,
			LastSeen: now,
		}
		return tx.Create(&host).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("room created", zap.String("room", room.ID), zap.String("host", hostID), zap.Bool("private", room.IsPrivate))
	return room, nil
}

func (s *Service) capacity(requested int) int {
	if requested <= 0 {
		return s.defaultCapacity
	}
	if requested < 2 {
		return 2
	}
	if requested > s.maxCapacity {
		return s.maxCapacity
	}
	return requested
}

// Get returns the room with its active participants.
func (s *Service) Get(ctx context.Context, roomID string) (*models.RoomModel, error) {
	return s.store.LoadRoom(ctx, roomID)
}

// ListPublic pages through public rooms that have not ended, newest first,
// narrowed by the optional status and name filters of q.
func (s *Service) ListPublic(ctx context.Context, q pagination.Query) ([]models.RoomModel, response.Pagination, error) {
	var rooms []models.RoomModel
	query := s.db.WithContext(ctx).Model(&models.RoomModel{}).
		Where("is_private = ? AND status <> ?", false, models.RoomStatusEnded)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Search != "" {
		query = query.Where("LOWER(name) LIKE ? ESCAPE '!'", pagination.ContainsPattern(q.Search))
	}
	page, err := pagination.Paginate(query.Order("created_at DESC"), q, &rooms)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	return rooms, page, nil
}

// Delete soft-deletes the room. Only the host may delete it.
func (s *Service) Delete(ctx context.Context, roomID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.HostID != userID {
			return realtime.ErrNotHost
		}
		if err := tx.Model(&models.ParticipantModel{}).
			Where("room_id = ?", roomID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		if err := tx.Model(room).Updates(map[string]interface{}{
			"status":               models.RoomStatusEnded,
			"current_participants": 0,
		}).Error; err != nil {
			return err
		}
		return tx.Delete(room).Error
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, realtime.ErrRoomNotFound)
}

// PurgeDeleted hard-deletes rooms soft-deleted before cutoff together with
// their participant records.
func (s *Service) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Unscoped().Model(&models.RoomModel{}).
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("room_id IN ?", ids).Delete(&models.ParticipantModel{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Where("id IN ?", ids).Delete(&models.RoomModel{})
		if res.Error != nil {
			return res.Error
		}
		purged = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("purged deleted rooms", zap.Int64("rooms", purged))
	}
	return purged, nil
}
