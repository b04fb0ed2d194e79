package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
)

// job is one inbound event. cmd is set when the event was decoded already.
type job struct {
	event string
	raw   any
	cmd   realtime.Command
}

// session serializes the inbound events of one socket. Exactly one worker
// goroutine drains it, so events of a connection never run concurrently.
type session struct {
	conn *realtime.Connection
	jobs chan job
	done chan struct{}
	once sync.Once
}

func newSession(conn *realtime.Connection, size int) *session {
	return &session{
		conn: conn,
		jobs: make(chan job, size),
		done: make(chan struct{}),
	}
}

// enqueue blocks while the queue is full. It reports false once the session
// is closed.
func (s *session) enqueue(j job) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.jobs <- j:
		return true
	case <-s.done:
		return false
	}
}

// close marks the connection closed so queued commands are skipped, then
// stops the worker.
func (s *session) close() {
	s.once.Do(func() {
		s.conn.MarkClosed()
		close(s.done)
	})
}

// start launches the worker. Cleanup runs on the worker after the last
// command it picked up has finished.
func (h *Hub) start(s *session) {
	h.track(s)
	h.workers.Add(1)
	go func() {
		defer h.workers.Done()
		defer h.finish(s)
		for {
			select {
			case <-s.done:
				return
			case j := <-s.jobs:
				h.handle(s, j)
			}
		}
	}()
}

func (h *Hub) handle(s *session, j job) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("socket handler panic",
				zap.String("conn", string(s.conn.ID())),
				zap.String("event", j.event),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	cmd := j.cmd
	if cmd == nil {
		var err error
		cmd, err = realtime.DecodeCommand(j.event, j.raw)
		if err != nil {
			h.svc.ReplyBadPayload(s.conn, realtime.InboundEvent(j.event), err)
			return
		}
	}

	h.svc.Dispatch(context.Background(), s.conn, cmd)
	if _, ok := cmd.(realtime.Authenticate); ok && s.conn.UserID() != "" {
		h.recordOnline(h.svc.Stats().Online)
	}
}

func (h *Hub) finish(s *session) {
	defer h.untrack(s)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("socket cleanup panic", zap.String("conn", string(s.conn.ID())), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	h.svc.Disconnect(ctx, s.conn)
}
