package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
)

const (
	redisKeyPresence = "cinemasync:presence"

	// A lease outlives a crashed instance by at most presenceTTL; live
	// instances renew theirs every presenceRefresh.
	presenceTTL     = 5 * time.Minute
	presenceRefresh = time.Minute
)

// roomPresence keeps one sorted set per (room, user). Members are
// "<instance>:<conn>" scored by lease expiry in unix seconds.
type roomPresence struct {
	hub *Hub
}

var _ realtime.RoomPresence = roomPresence{}

// RoomPresence returns the cross-instance lease store, or nil when fan-out
// is off and the local registry is authoritative.
func (h *Hub) RoomPresence() realtime.RoomPresence {
	if !h.fanout {
		return nil
	}
	return roomPresence{hub: h}
}

func presenceKey(roomID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPresence, roomID, userID)
}

func (h *Hub) presenceMember(conn realtime.ConnID) string {
	return h.instanceID + ":" + string(conn)
}

func leaseScore(now time.Time) float64 {
	return float64(now.Add(presenceTTL).Unix())
}

func (p roomPresence) Enter(ctx context.Context, roomID, userID string, conn realtime.ConnID) error {
	key := presenceKey(roomID, userID)
	_, err := p.hub.rc.Raw().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: leaseScore(time.Now()), Member: p.hub.presenceMember(conn)})
		pipe.Expire(ctx, key, presenceTTL)
		return nil
	})
	return err
}

func (p roomPresence) Exit(ctx context.Context, roomID, userID string, conn realtime.ConnID) (int, error) {
	key := presenceKey(roomID, userID)
	var live *redis.IntCmd
	_, err := p.hub.rc.Raw().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key, p.hub.presenceMember(conn))
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(time.Now().Unix(), 10))
		live = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(live.Val()), nil
}

// refreshPresence renews the leases of every locally joined connection.
// ZAddXX never resurrects a lease that was already released.
func (h *Hub) refreshPresence(ctx context.Context) int {
	type binding struct {
		roomID, userID string
		conn           realtime.ConnID
	}
	h.mu.Lock()
	bound := make([]binding, 0, len(h.sessions))
	for id, s := range h.sessions {
		roomID, ok := s.conn.JoinedRoom()
		if !ok || s.conn.Closed() {
			continue
		}
		bound = append(bound, binding{roomID: roomID, userID: s.conn.UserID(), conn: id})
	}
	h.mu.Unlock()
	if len(bound) == 0 {
		return 0
	}

	score := leaseScore(time.Now())
	_, err := h.rc.Raw().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, b := range bound {
			key := presenceKey(b.roomID, b.userID)
			pipe.ZAddXX(ctx, key, redis.Z{Score: score, Member: h.presenceMember(b.conn)})
			pipe.Expire(ctx, key, presenceTTL)
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("room presence refresh failed", zap.Int("bindings", len(bound)), zap.Error(err))
		return 0
	}
	return len(bound)
}

func (h *Hub) keepPresence(ctx context.Context) {
	ticker := time.NewTicker(presenceRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.refreshPresence(ctx)
		}
	}
}
