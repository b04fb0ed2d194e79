package realtime

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Relay forwards a negotiation message to the target identity's connections
// that are joined to the sender's room. It returns the number of local
// deliveries; zero is not an error.
func (s *Service) Relay(ctx context.Context, conn *Connection, sig Signal) (int, error) {
	user := conn.User()
	if user == nil {
		return 0, ErrUnauthenticated
	}
	roomID, ok := conn.JoinedRoom()
	if !ok {
		return 0, ErrNotInRoom
	}
	if sig.RoomID != "" && sig.RoomID != roomID {
		return 0, ErrNotInRoom
	}

	event := sig.Kind.outbound()
	if event == "" {
		return 0, ErrBadPayload
	}
	env := SignalEnvelope{From: user.ID, RoomID: roomID, Payload: sig.Payload}

	delivered := s.DeliverLocal(sig.To, roomID, event, env)
	if s.forwarder != nil {
		s.forwarder.ForwardRelay(RelayMessage{From: user.ID, To: sig.To, RoomID: roomID, Event: event, Payload: env})
	}
	if delivered == 0 {
		s.logger.Debug("relay target has no connection in room",
			zap.String("event", string(event)),
			zap.String("from", user.ID),
			zap.String("to", sig.To),
			zap.String("room", roomID),
		)
	}
	return delivered, nil
}

// DeliverLocal emits to every local connection of userID joined to roomID.
func (s *Service) DeliverLocal(userID, roomID string, event OutboundEvent, payload any) int {
	delivered := 0
	for _, target := range s.registry.HandlesFor(userID) {
		if joined, ok := target.JoinedRoom(); !ok || joined != roomID {
			continue
		}
		if err := target.Transport().Emit(event, payload); err != nil {
			s.logger.Debug("relay emit failed", zap.String("conn", string(target.ID())), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast fans a chat or voice message out to the sender's room, minus the
// sender. Chat is refused when the room has it disabled.
func (s *Service) Broadcast(ctx context.Context, conn *Connection, msg RoomMessage) error {
	user := conn.User()
	if user == nil {
		return ErrUnauthenticated
	}
	roomID, ok := conn.JoinedRoom()
	if !ok {
		return ErrNotInRoom
	}

	if !msg.Voice {
		room, err := s.rooms.LoadRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if !room.Settings.AllowChat {
			return ErrChatDisabled
		}
	}

	conn.Transport().EmitToRoom(roomID, msg.Event().outbound(), ChatEnvelope{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		From:      user.ID,
		User:      NewUserView(user),
		Message:   msg.Message,
		Timestamp: s.now(),
	})
	return nil
}
