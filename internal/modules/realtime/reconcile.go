package realtime

import (
	"context"

	"go.uber.org/zap"
)

// Disconnect reconciles an abrupt transport loss. Storage failures are logged
// and swallowed; the connection's bindings are always released.
func (s *Service) Disconnect(ctx context.Context, conn *Connection) {
	conn.MarkClosed()
	defer conn.clearRoom()

	userID := conn.UserID()
	if userID == "" {
		return
	}
	s.release(ctx, conn, userID)
	conn.bindUser(nil)
}

// release detaches conn from userID: registry first, then room membership.
// Presence is demoted only by the unbind that empties the identity's set.
func (s *Service) release(ctx context.Context, conn *Connection, userID string) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if s.registry.Unbind(userID, conn.ID()) {
		if err := s.users.SetOnline(ctx, userID, false, s.now()); err != nil {
			s.logger.Warn("mark user offline failed", zap.String("user", userID), zap.Error(err))
		}
	}

	if roomID := conn.RoomID(); roomID != "" {
		if err := s.leaveLocked(ctx, conn, userID, roomID); err != nil {
			s.logger.Warn("disconnect cleanup failed",
				zap.String("room", roomID),
				zap.String("user", userID),
				zap.String("conn", string(conn.ID())),
				zap.Error(err),
			)
		}
	}
}
