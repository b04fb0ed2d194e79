package gateway

import (
	"encoding/json"
	"sync"
	"time"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
	pkgredis "github.com/dhanjayarya01/cinemasync-backend/internal/pkg/redis"
)

const (
	namespaceRoot  = "/"
	redisChanRoom  = "cinemasync:gateway:room"
	redisChanRelay = "cinemasync:gateway:relay"

	redisKeyMaxOnlineCount      = "cinemasync:max_online_count"
	redisKeyMaxOnlineCountTotal = "cinemasync:max_online_count:total"

	defaultQueueSize  = 64
	disconnectTimeout = 5 * time.Second
	publishTimeout    = 2 * time.Second
)

// Message is the envelope published to Redis so other instances can deliver
// room broadcasts and relays to their own connections.
type Message struct {
	Origin  string          `json:"origin"`
	Event   string          `json:"event"`
	Room    string          `json:"room"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Options configures a Hub. Redis may be nil, which disables fan-out and
// peak statistics. Origins checks the handshake Origin header; nil accepts
// every origin.
type Options struct {
	Redis     *pkgredis.Client
	Fanout    bool
	QueueSize int
	Origins   func(origin string) bool
	Logger    *zap.Logger
}

// roomEmitter delivers an event to every local socket in a room.
type roomEmitter func(roomID, event string, payload any) error

// Hub owns the socket.io server and the per-connection dispatch queues.
type Hub struct {
	mu       sync.Mutex
	sessions map[realtime.ConnID]*session
	workers  sync.WaitGroup

	svc        *realtime.Service
	rc         *pkgredis.Client
	fanout     bool
	queueSize  int
	instanceID string
	logger     *zap.Logger
	sio        *socketio.Server
	emitRoom   roomEmitter
	origins    func(string) bool
}
