package realtime

import (
	"context"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

// ApplyHostCommand applies a play, pause, seek or media change. Only a joined
// connection whose identity is the room's host may mutate playback; anything
// else returns an error and touches neither the store nor the room.
func (s *Service) ApplyHostCommand(ctx context.Context, conn *Connection, cmd Command) error {
	user := conn.User()
	if user == nil {
		return ErrUnauthenticated
	}
	roomID, ok := conn.JoinedRoom()
	if !ok {
		return ErrNotInRoom
	}

	room, err := s.rooms.LoadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !isHost(room, user.ID) {
		return ErrNotHost
	}

	update, event, err := ApplyPlayback(room, cmd, s.now())
	if err != nil {
		return err
	}
	if err := s.rooms.SavePlayback(ctx, roomID, user.ID, update); err != nil {
		return err
	}

	conn.Transport().EmitToRoom(roomID, event, newPlaybackPayload(roomID, user.ID, update))
	return nil
}

func isHost(room *models.RoomModel, userID string) bool {
	return userID != "" && room.HostID == userID
}
