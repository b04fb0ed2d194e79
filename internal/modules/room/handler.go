package room

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dhanjayarya01/cinemasync-backend/internal/middleware"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/pagination"
	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, idempotence gin.HandlerFunc) {
	g := rg.Group("/rooms")
	g.GET("", h.list)
	g.GET("/:id", h.get)

	a := g.Group("", authMW)
	a.POST("", idempotence, h.create)
	a.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	rooms, page, err := h.svc.ListPublic(c.Request.Context(), pagination.FromContext(c, listableStatuses...))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	views := make([]realtime.RoomSnapshot, 0, len(rooms))
	for i := range rooms {
		views = append(views, realtime.NewRoomSnapshot(&rooms[i]))
	}
	response.Paged(c, views, page)
}

func (h *Handler) get(c *gin.Context) {
	room, err := h.svc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		if isNotFound(err) {
			response.NotFoundMsg(c, "room not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, realtime.NewRoomSnapshot(room))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateRoomDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	room, err := h.svc.Create(c.Request.Context(), middleware.CurrentUserID(c), dto)
	if err != nil {
		if errors.Is(err, errNameRequired) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, realtime.NewRoomSnapshot(room))
}

func (h *Handler) delete(c *gin.Context) {
	err := h.svc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id")), middleware.CurrentUserID(c))
	switch {
	case err == nil:
		response.NoContent(c)
	case isNotFound(err):
		response.NotFoundMsg(c, "room not found")
	case errors.Is(err, realtime.ErrNotHost):
		response.ForbiddenMsg(c, "only the host can delete this room")
	default:
		response.InternalError(c, err)
	}
}
