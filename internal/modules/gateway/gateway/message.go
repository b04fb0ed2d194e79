package gateway

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
)

// ForwardRelay publishes a relay so instances holding the target's
// connections can deliver it.
func (h *Hub) ForwardRelay(msg realtime.RelayMessage) {
	if !h.fanout {
		return
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		h.logger.Warn("encode relay failed", zap.String("event", string(msg.Event)), zap.Error(err))
		return
	}
	h.publish(redisChanRelay, Message{Event: string(msg.Event), Room: msg.RoomID, To: msg.To, Payload: raw})
}

func (h *Hub) publish(channel string, msg Message) {
	if !h.fanout {
		return
	}
	msg.Origin = h.instanceID
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.rc.Publish(ctx, channel, string(data)); err != nil {
		h.logger.Warn("gateway publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// subscribeRedis listens for broadcasts from other server instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanRoom, redisChanRelay)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			h.deliverRemote(redisMsg.Channel, redisMsg.Payload)
		}
	}
}

// deliverRemote hands a message published by another instance to local
// sockets. It returns the number of relay deliveries.
func (h *Hub) deliverRemote(channel, payload string) int {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		h.logger.Debug("gateway drop malformed message", zap.String("channel", channel), zap.Error(err))
		return 0
	}
	if msg.Origin == h.instanceID || msg.Room == "" {
		return 0
	}

	var data any
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &data); err != nil {
			return 0
		}
	}

	switch channel {
	case redisChanRoom:
		if err := h.emitRoom(msg.Room, msg.Event, data); err != nil {
			h.logger.Debug("remote room emit failed", zap.String("room", msg.Room), zap.Error(err))
		}
		return 0
	case redisChanRelay:
		if msg.To == "" {
			return 0
		}
		return h.svc.DeliverLocal(msg.To, msg.Room, realtime.OutboundEvent(msg.Event), data)
	}
	return 0
}
