package realtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

// Join moves conn into req.RoomID. A connection joined elsewhere leaves its
// current room first; joining the room it is already in re-admits it and
// resends the snapshot.
func (s *Service) Join(ctx context.Context, conn *Connection, req JoinRoom) (*models.RoomModel, error) {
	user := conn.User()
	if user == nil {
		return nil, ErrUnauthenticated
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	current := conn.RoomID()
	if current != "" && current != req.RoomID {
		if err := s.leaveLocked(ctx, conn, user.ID, current); err != nil {
			s.logger.Warn("leave previous room failed",
				zap.String("room", current), zap.String("user", user.ID), zap.Error(err))
		}
		current = ""
	}
	rejoin := current == req.RoomID

	conn.setRoom(req.RoomID, Joining)
	conn.Transport().JoinChannel(req.RoomID)
	s.enterPresence(ctx, conn, user.ID, req.RoomID)

	now := s.now()
	res, err := s.rooms.AdmitParticipant(ctx, req.RoomID, user.ID, func(room *models.RoomModel, existing *models.ParticipantModel) error {
		return CheckJoin(room, existing, user.ID, req.Password)
	}, now)
	if err != nil {
		if rejoin {
			conn.setState(Joined)
		} else {
			s.exitPresence(ctx, conn, user.ID, req.RoomID)
			conn.Transport().LeaveChannel(req.RoomID)
			conn.clearRoom()
		}
		return nil, err
	}

	conn.setState(Joined)
	conn.touchDue(now, 0)
	room := res.Room

	s.emit(conn, OutRoomJoined, RoomJoinedPayload{Room: NewRoomSnapshot(room), Self: NewUserView(user)})
	if !res.WasActive {
		conn.Transport().EmitToRoom(room.ID, OutUserJoined, MembershipPayload{
			RoomID: room.ID,
			User:   NewUserView(user),
			Count:  room.CurrentParticipants,
		})
	}
	conn.Transport().EmitToRoom(room.ID, OutParticipantsUpdated, NewParticipantsPayload(room))
	return room, nil
}

// Leave removes conn from its room and confirms with room-left.
func (s *Service) Leave(ctx context.Context, conn *Connection) error {
	userID := conn.UserID()
	if userID == "" {
		return ErrUnauthenticated
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	roomID := conn.RoomID()
	if roomID == "" {
		return ErrNotInRoom
	}
	if err := s.leaveLocked(ctx, conn, userID, roomID); err != nil {
		return err
	}
	s.emit(conn, OutRoomLeft, RoomLeftPayload{RoomID: roomID})
	return nil
}

// leaveLocked runs the Leaving transition. The caller holds the identity
// lock. The connection's channel and room binding are released even when the
// store fails.
func (s *Service) leaveLocked(ctx context.Context, conn *Connection, userID, roomID string) error {
	conn.setState(Leaving)
	defer func() {
		conn.Transport().LeaveChannel(roomID)
		conn.clearRoom()
	}()

	leases := s.exitPresence(ctx, conn, userID, roomID)
	if leases > 0 || s.boundElsewhere(conn, userID, roomID) {
		return nil
	}

	room, err := s.rooms.DeactivateParticipant(ctx, roomID, userID, s.now())
	if err != nil {
		return fmt.Errorf("deactivate participant: %w", err)
	}

	conn.Transport().EmitToRoom(roomID, OutUserLeft, MembershipPayload{
		RoomID: roomID,
		User:   NewUserView(conn.User()),
		Count:  room.CurrentParticipants,
	})
	conn.Transport().EmitToRoom(roomID, OutParticipantsUpdated, NewParticipantsPayload(room))
	return nil
}

// boundElsewhere reports whether another live connection of the identity is
// still joined to roomID, in which case the participant stays active.
func (s *Service) boundElsewhere(conn *Connection, userID, roomID string) bool {
	for _, other := range s.registry.HandlesFor(userID) {
		if other.ID() == conn.ID() || other.Closed() {
			continue
		}
		if joined, ok := other.JoinedRoom(); ok && joined == roomID {
			return true
		}
	}
	return false
}

// enterPresence leases the binding before admission so a concurrent leave on
// another instance already sees it. Failures degrade to local-only presence.
func (s *Service) enterPresence(ctx context.Context, conn *Connection, userID, roomID string) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Enter(ctx, roomID, userID, conn.ID()); err != nil {
		s.logger.Warn("room presence enter failed",
			zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
	}
}

// exitPresence releases conn's lease and returns the leases userID still
// holds in roomID, counting other instances. It returns 0 on failure.
func (s *Service) exitPresence(ctx context.Context, conn *Connection, userID, roomID string) int {
	if s.presence == nil {
		return 0
	}
	remaining, err := s.presence.Exit(ctx, roomID, userID, conn.ID())
	if err != nil {
		s.logger.Warn("room presence exit failed",
			zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
		return 0
	}
	return remaining
}
