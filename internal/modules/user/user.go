package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dhanjayarya01/cinemasync-backend/internal/middleware"
	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/response"
)

type userResponse struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Avatar   string     `json:"avatar"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

type publicUserResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"isOnline"`
}

func toResponse(u *models.UserModel) *userResponse {
	return &userResponse{
		ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar,
		IsOnline: u.IsOnline, LastSeen: u.LastSeen,
	}
}

func toPublicResponse(u *models.UserModel) *publicUserResponse {
	return &publicUserResponse{ID: u.ID, Name: u.Name, Avatar: u.Avatar, IsOnline: u.IsOnline}
}

// Service reads user records and maintains the presence columns. Accounts
// themselves are created by the account service.
type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

var _ realtime.UserStore = (*Service)(nil)

// GetByID returns nil, nil when the user does not exist.
func (s *Service) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SetOnline flips the durable online flag and stamps last_seen.
func (s *Service) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_online": online, "last_seen": at}).Error
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/users")
	g.GET("/me", authMW, h.me)
	g.GET("/:id", h.get)
}

// me reloads the caller so the presence columns are current.
func (h *Handler) me(c *gin.Context) {
	u, err := h.svc.GetByID(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if u == nil {
		response.NotFoundMsg(c, "user not found")
		return
	}
	response.OK(c, toResponse(u))
}

func (h *Handler) get(c *gin.Context) {
	u, err := h.svc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if u == nil {
		response.NotFoundMsg(c, "user not found")
		return
	}
	response.OK(c, toPublicResponse(u))
}
