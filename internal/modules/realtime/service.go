package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultTouchInterval = 30 * time.Second

// Options wires the core to its collaborators. Forwarder and Presence are
// optional; without Presence only local connections keep a participant active.
type Options struct {
	Rooms     Directory
	Users     UserStore
	Verifier  Verifier
	Forwarder RelayForwarder
	Presence  RoomPresence
	Logger    *zap.Logger

	// OpTimeout bounds the store I/O of one command. Zero means no bound.
	OpTimeout time.Duration
	// TouchInterval throttles participant last-seen refreshes.
	TouchInterval time.Duration
	Clock         func() time.Time
}

// Service is the room synchronization and signaling core. Commands for one
// connection must be dispatched serially; commands for different connections
// may run concurrently.
type Service struct {
	rooms     Directory
	users     UserStore
	verifier  Verifier
	forwarder RelayForwarder
	presence  RoomPresence
	logger    *zap.Logger

	registry *Registry
	locks    *keyedMutex

	opTimeout     time.Duration
	touchInterval time.Duration
	now           func() time.Time
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	touch := opts.TouchInterval
	if touch <= 0 {
		touch = defaultTouchInterval
	}
	return &Service{
		rooms:         opts.Rooms,
		users:         opts.Users,
		verifier:      opts.Verifier,
		forwarder:     opts.Forwarder,
		presence:      opts.Presence,
		logger:        logger,
		registry:      NewRegistry(),
		locks:         newKeyedMutex(),
		opTimeout:     opts.OpTimeout,
		touchInterval: touch,
		now:           clock,
	}
}

func (s *Service) Registry() *Registry { return s.registry }

// Stats is a point-in-time view of local presence.
type Stats struct {
	Connections int `json:"connections"`
	Online      int `json:"online"`
	Rooms       int `json:"rooms"`
}

func (s *Service) Stats() Stats {
	return Stats{
		Connections: s.registry.ConnectionCount(),
		Online:      s.registry.OnlineCount(),
		Rooms:       s.registry.RoomCount(),
	}
}

// Dispatch runs one decoded command for conn and reports failures the way the
// protocol expects: auth failures as auth-error, join and leave failures as
// error to the requester, everything else silently.
func (s *Service) Dispatch(ctx context.Context, conn *Connection, cmd Command) {
	if conn.Closed() {
		return
	}
	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}

	var err error
	switch c := cmd.(type) {
	case Authenticate:
		if _, err = s.Authenticate(ctx, conn, c.Token); err != nil {
			s.emit(conn, OutAuthError, AuthErrorPayload{Code: CodeOf(err), Message: publicMessage(err)})
			s.logger.Debug("authentication rejected", zap.String("conn", string(conn.ID())), zap.Error(err))
		}
		return
	case JoinRoom:
		if _, err = s.Join(ctx, conn, c); err != nil {
			s.replyError(conn, c.Event(), err)
		}
		return
	case LeaveRoom:
		if err = s.Leave(ctx, conn); err != nil {
			s.replyError(conn, c.Event(), err)
		}
		return
	case SetPlaying, Seek, SetMedia:
		err = s.ApplyHostCommand(ctx, conn, c)
	case RoomMessage:
		err = s.Broadcast(ctx, conn, c)
	case Signal:
		_, err = s.Relay(ctx, conn, c)
	}

	if err != nil {
		s.logger.Debug("command dropped",
			zap.String("event", string(cmd.Event())),
			zap.String("conn", string(conn.ID())),
			zap.String("user", conn.UserID()),
			zap.Error(err),
		)
	}
	s.heartbeat(ctx, conn)
}

// ReplyBadPayload reports a command that could not be decoded. Only join and
// leave failures are surfaced; the rest are dropped like any other failure.
func (s *Service) ReplyBadPayload(conn *Connection, event InboundEvent, err error) {
	switch event {
	case InAuthenticate:
		s.emit(conn, OutAuthError, AuthErrorPayload{Code: CodeOf(err), Message: publicMessage(err)})
	case InJoinRoom, InLeaveRoom:
		s.replyError(conn, event, err)
	default:
		s.logger.Debug("undecodable command dropped", zap.String("event", string(event)), zap.Error(err))
	}
}

func (s *Service) replyError(conn *Connection, op InboundEvent, err error) {
	code := CodeOf(err)
	if code == CodeInternal {
		s.logger.Warn("realtime operation failed",
			zap.String("op", string(op)),
			zap.String("conn", string(conn.ID())),
			zap.String("user", conn.UserID()),
			zap.Error(err),
		)
	}
	s.emit(conn, OutError, ErrorPayload{Code: code, Message: publicMessage(err), Op: op})
}

func (s *Service) emit(conn *Connection, event OutboundEvent, payload any) {
	if err := conn.Transport().Emit(event, payload); err != nil {
		s.logger.Debug("emit failed", zap.String("event", string(event)), zap.String("conn", string(conn.ID())), zap.Error(err))
	}
}

// heartbeat refreshes the participant's last seen at most once per interval.
func (s *Service) heartbeat(ctx context.Context, conn *Connection) {
	userID := conn.UserID()
	roomID, ok := conn.JoinedRoom()
	if userID == "" || !ok {
		return
	}
	now := s.now()
	if !conn.touchDue(now, s.touchInterval) {
		return
	}
	if err := s.rooms.TouchParticipant(ctx, roomID, userID, now); err != nil {
		s.logger.Debug("touch participant failed", zap.String("room", roomID), zap.String("user", userID), zap.Error(err))
	}
}
