package gateway

import (
	"encoding/json"
	"fmt"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
)

// socketTransport adapts one socket.io socket to realtime.Transport.
type socketTransport struct {
	client *socketio.Socket
	hub    *Hub
}

var _ realtime.Transport = (*socketTransport)(nil)

func (t *socketTransport) Emit(event realtime.OutboundEvent, payload any) error {
	data, _, err := normalizePayload(payload)
	if err != nil {
		return err
	}
	return t.client.Emit(string(event), data)
}

func (t *socketTransport) JoinChannel(roomID string) {
	t.client.Join(socketio.Room(roomID))
}

func (t *socketTransport) LeaveChannel(roomID string) {
	t.client.Leave(socketio.Room(roomID))
}

// EmitToRoom reaches the room's other local sockets and, with fan-out on,
// the sockets of every other instance.
func (t *socketTransport) EmitToRoom(roomID string, event realtime.OutboundEvent, payload any) {
	data, raw, err := normalizePayload(payload)
	if err != nil {
		t.hub.logger.Warn("encode room event failed", zap.String("event", string(event)), zap.Error(err))
		return
	}
	if err := t.client.To(socketio.Room(roomID)).Emit(string(event), data); err != nil {
		t.hub.logger.Debug("room emit failed", zap.String("room", roomID), zap.String("event", string(event)), zap.Error(err))
	}
	t.hub.publish(redisChanRoom, Message{Event: string(event), Room: roomID, Payload: raw})
}

// normalizePayload turns typed payloads into plain JSON values so the
// socket.io encoder sees maps and slices instead of byte slices.
func normalizePayload(payload any) (any, json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, raw, nil
}
