package gateway

import (
	"strings"

	"github.com/zishang520/engine.io/utils"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/middleware"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
)

func (h *Hub) registerNamespaces() {
	nsp := h.sio.Of(namespaceRoot, nil)
	_ = nsp.On("connection", func(args ...any) {
		if len(args) == 0 {
			return
		}
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}
		h.accept(client)
	})
}

func (h *Hub) accept(client *socketio.Socket) {
	if origin := handshakeOrigin(client); !h.originAllowed(origin) {
		h.logger.Warn("socket origin rejected", zap.String("origin", origin), zap.String("sid", string(client.Id())))
		client.Disconnect(true)
		return
	}

	conn := realtime.NewConnection(realtime.ConnID(client.Id()), &socketTransport{client: client, hub: h})
	s := newSession(conn, h.queueSize)
	h.start(s)

	// a token in the handshake authenticates before any client event runs
	if token := middleware.NormalizeToken(extractToken(client)); token != "" {
		s.enqueue(job{event: string(realtime.InAuthenticate), cmd: realtime.Authenticate{Token: token}})
	}

	for _, ev := range realtime.InboundEvents() {
		event := string(ev)
		_ = client.On(event, func(eventArgs ...any) {
			var raw any
			if len(eventArgs) > 0 {
				raw = eventArgs[0]
			}
			if !s.enqueue(job{event: event, raw: raw}) {
				h.logger.Debug("event after close dropped", zap.String("conn", string(conn.ID())), zap.String("event", event))
			}
		})
	}

	_ = client.On("disconnect", func(_ ...any) {
		s.close()
	})
}

func (h *Hub) originAllowed(origin string) bool {
	return h.origins == nil || h.origins(origin)
}

func handshakeOrigin(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	return firstValueFromMultiMap(bagValues(handshake.Headers), "origin")
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := tokenFromAuth(handshake.Auth); token != "" {
		return token
	}
	if token := firstValueFromMultiMap(bagValues(handshake.Query), "token"); token != "" {
		return token
	}
	return firstValueFromMultiMap(bagValues(handshake.Headers), "authorization")
}

// tokenFromAuth reads {token} from the socket.io v4 handshake auth object.
func tokenFromAuth(auth any) string {
	m, ok := auth.(map[string]any)
	if !ok {
		return ""
	}
	token, _ := m["token"].(string)
	return strings.TrimSpace(token)
}

// bagValues unwraps a handshake parameter bag; a nil bag has no values.
func bagValues(bag *utils.ParameterBag) map[string][]string {
	if bag == nil {
		return nil
	}
	return bag.All()
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}
