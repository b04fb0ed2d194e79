package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
)

func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	sio := socketio.NewServer(nil, nil)
	h := &Hub{
		sessions:   make(map[realtime.ConnID]*session),
		rc:         opts.Redis,
		fanout:     opts.Fanout && opts.Redis != nil,
		queueSize:  size,
		instanceID: uuid.NewString(),
		logger:     logger,
		sio:        sio,
		origins:    opts.Origins,
	}
	h.emitRoom = func(roomID, event string, payload any) error {
		return sio.Of(namespaceRoot, nil).To(socketio.Room(roomID)).Emit(event, payload)
	}
	return h
}

var _ realtime.RelayForwarder = (*Hub)(nil)

// Attach binds the hub to the core and starts accepting connections.
func (h *Hub) Attach(svc *realtime.Service) {
	h.svc = svc
	h.registerNamespaces()
}

// Run blocks until ctx is done, delivering fan-out from other instances and
// renewing room presence leases when enabled.
func (h *Hub) Run(ctx context.Context) {
	if h.fanout {
		go h.subscribeRedis(ctx)
		go h.keepPresence(ctx)
	}
	<-ctx.Done()
}

// Shutdown closes every socket and waits for their cleanup to finish.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	open := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()
	for _, s := range open {
		s.close()
	}
	h.sio.Close(nil)

	done := make(chan struct{})
	go func() {
		h.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) track(s *session) {
	h.mu.Lock()
	h.sessions[s.conn.ID()] = s
	h.mu.Unlock()
}

func (h *Hub) untrack(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.conn.ID())
	h.mu.Unlock()
}

// SessionCount returns the number of sockets with a live dispatch queue.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// recordOnline keeps the daily peak of online identities, best effort.
func (h *Hub) recordOnline(online int) {
	if h.rc == nil || online <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	dateKey := shortDateKey(time.Now())
	if _, err := h.rc.HRaiseMax(ctx, redisKeyMaxOnlineCount, dateKey, int64(online)); err != nil {
		h.logger.Warn("gateway set max online failed", zap.Error(err))
	}
	if err := h.rc.Raw().HIncrBy(ctx, redisKeyMaxOnlineCountTotal, dateKey, 1).Err(); err != nil {
		h.logger.Warn("gateway incr online total failed", zap.Error(err))
	}
}

// StatsResponse is the body of GET /gateway/stats.
type StatsResponse struct {
	realtime.Stats
	Sessions    int   `json:"sessions"`
	PeakToday   int64 `json:"peakToday"`
	LoginsToday int64 `json:"loginsToday"`
}

func (h *Hub) Stats(ctx context.Context) StatsResponse {
	out := StatsResponse{Stats: h.svc.Stats(), Sessions: h.SessionCount()}
	if h.rc == nil {
		return out
	}
	dateKey := shortDateKey(time.Now())
	out.PeakToday = h.readCounter(ctx, redisKeyMaxOnlineCount, dateKey)
	out.LoginsToday = h.readCounter(ctx, redisKeyMaxOnlineCountTotal, dateKey)
	return out
}

func (h *Hub) readCounter(ctx context.Context, key, field string) int64 {
	raw, err := h.rc.Raw().HGet(ctx, key, field).Result()
	switch {
	case err == nil:
		n, _ := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		return n
	case errors.Is(err, redis.Nil):
		return 0
	default:
		h.logger.Warn("gateway read stats failed", zap.String("key", key), zap.Error(err))
		return 0
	}
}

func shortDateKey(t time.Time) string {
	return t.Format("1-2-06")
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}

// PruneStats drops daily counters older than keep.
func (h *Hub) PruneStats(ctx context.Context, keep time.Duration) (int, error) {
	if h.rc == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-keep)
	removed := 0
	for _, key := range []string{redisKeyMaxOnlineCount, redisKeyMaxOnlineCountTotal} {
		fields, err := h.rc.Raw().HKeys(ctx, key).Result()
		if err != nil {
			return removed, err
		}
		var stale []string
		for _, f := range fields {
			day, err := time.ParseInLocation("1-2-06", f, time.Local)
			if err != nil || day.Before(cutoff) {
				stale = append(stale, f)
			}
		}
		if len(stale) == 0 {
			continue
		}
		if err := h.rc.Raw().HDel(ctx, key, stale...).Err(); err != nil {
			return removed, err
		}
		removed += len(stale)
	}
	return removed, nil
}
