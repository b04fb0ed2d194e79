package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
	pkgredis "github.com/dhanjayarya01/cinemasync-backend/internal/pkg/redis"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *pkgredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, pkgredis.New(rdb)
}

func TestSessionDispatchesInOrder(t *testing.T) {
	env := newTestEnv(t, Options{})
	s, tr := env.open("c1")

	for _, ev := range []realtime.InboundEvent{realtime.InJoinRoom, realtime.InLeaveRoom, realtime.InJoinRoom} {
		s.enqueue(job{event: string(ev), raw: map[string]any{"roomId": "r1"}})
	}
	waitFor(t, "three error replies", func() bool { return len(tr.direct()) == 3 })

	want := []realtime.InboundEvent{realtime.InJoinRoom, realtime.InLeaveRoom, realtime.InJoinRoom}
	for i, e := range tr.direct() {
		body := e.payload.(map[string]any)
		if e.event != string(realtime.OutError) || body["op"] != string(want[i]) || body["code"] != string(realtime.CodeUnauthenticated) {
			t.Fatalf("reply %d = %s %v", i, e.event, body)
		}
	}
}

func TestSessionHandshakeAuthentication(t *testing.T) {
	env := newTestEnv(t, Options{}, "r1")
	s, tr := env.open("c1")

	s.enqueue(job{event: string(realtime.InAuthenticate), cmd: realtime.Authenticate{Token: "token-u1"}})
	s.enqueue(job{event: string(realtime.InJoinRoom), raw: `{"roomId":"r1"}`})
	waitFor(t, "room-joined", func() bool { return len(tr.direct()) == 2 })

	got := tr.direct()
	if got[0].event != string(realtime.OutAuthenticated) || got[1].event != string(realtime.OutRoomJoined) {
		t.Fatalf("events = %s", eventNames(got))
	}
	if !env.svc.Registry().Online("u1") {
		t.Fatal("u1 not online after handshake token")
	}
}

func TestSessionBadPayload(t *testing.T) {
	env := newTestEnv(t, Options{})
	s, tr := env.open("c1")

	s.enqueue(job{event: string(realtime.InJoinRoom), raw: 42})
	waitFor(t, "bad payload reply", func() bool { return len(tr.direct()) == 1 })
	body := tr.direct()[0].payload.(map[string]any)
	if body["code"] != string(realtime.CodeBadPayload) {
		t.Fatalf("reply = %v", body)
	}
}

func TestSessionRecoversFromPanic(t *testing.T) {
	env := newTestEnv(t, Options{})
	s, tr := env.open("c1")

	s.enqueue(job{event: string(realtime.InAuthenticate), raw: map[string]any{"token": "boom"}})
	s.enqueue(job{event: string(realtime.InAuthenticate), raw: map[string]any{"token": "token-u1"}})
	waitFor(t, "authenticated after panic", func() bool { return len(tr.direct()) == 1 })

	if tr.direct()[0].event != string(realtime.OutAuthenticated) {
		t.Fatalf("events = %s", eventNames(tr.direct()))
	}
	if env.logs.FilterMessage("socket handler panic").Len() != 1 {
		t.Fatal("panic was not logged")
	}
}

func TestSessionCloseRunsDisconnect(t *testing.T) {
	env := newTestEnv(t, Options{}, "r1")
	s, tr := env.open("c1")
	s.enqueue(job{event: string(realtime.InAuthenticate), raw: `{"token":"token-u1"}`})
	s.enqueue(job{event: string(realtime.InJoinRoom), raw: `{"roomId":"r1"}`})
	waitFor(t, "joined", func() bool { return len(tr.direct()) == 2 })

	s.close()
	s.close()
	env.hub.workers.Wait()

	if !s.conn.Closed() {
		t.Fatal("connection not marked closed")
	}
	if env.svc.Registry().Online("u1") {
		t.Fatal("u1 still online after disconnect")
	}
	if env.hub.SessionCount() != 0 {
		t.Fatalf("sessions = %d after close", env.hub.SessionCount())
	}
	if s.enqueue(job{event: string(realtime.InLeaveRoom)}) {
		t.Fatal("enqueue accepted after close")
	}
}

func TestForwardRelayPublishes(t *testing.T) {
	_, rc := newTestRedis(t)
	env := newTestEnv(t, Options{Redis: rc, Fanout: true})

	ctx := context.Background()
	sub := rc.Subscribe(ctx, redisChanRelay)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	env.hub.ForwardRelay(realtime.RelayMessage{
		From:    "a",
		To:      "b",
		RoomID:  "r1",
		Event:   realtime.OutOffer,
		Payload: realtime.SignalEnvelope{From: "a", RoomID: "r1", Payload: json.RawMessage(`{"sdp":"x"}`)},
	})

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := sub.ReceiveMessage(rctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(got.Payload), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Origin != env.hub.instanceID || msg.To != "b" || msg.Room != "r1" || msg.Event != "offer" {
		t.Fatalf("published = %+v", msg)
	}
}

func TestForwardRelayWithoutFanout(t *testing.T) {
	env := newTestEnv(t, Options{Fanout: true})
	if env.hub.fanout {
		t.Fatal("fan-out enabled without redis")
	}
	env.hub.ForwardRelay(realtime.RelayMessage{To: "b", RoomID: "r1", Event: realtime.OutOffer})
}

func TestDeliverRemote(t *testing.T) {
	env := newTestEnv(t, Options{}, "r1")

	var mu sync.Mutex
	var roomCalls []string
	env.hub.emitRoom = func(roomID, event string, payload any) error {
		mu.Lock()
		defer mu.Unlock()
		roomCalls = append(roomCalls, roomID+"/"+event)
		return nil
	}

	s, tr := env.open("c1")
	s.enqueue(job{event: string(realtime.InAuthenticate), raw: `{"token":"token-b"}`})
	s.enqueue(job{event: string(realtime.InJoinRoom), raw: `{"roomId":"r1"}`})
	waitFor(t, "joined", func() bool { return len(tr.direct()) == 2 })

	encode := func(m Message) string {
		data, _ := json.Marshal(m)
		return string(data)
	}
	relay := Message{Origin: "other", Event: "offer", Room: "r1", To: "b", Payload: json.RawMessage(`{"from":"a","roomId":"r1","payload":{"sdp":"x"}}`)}

	if n := env.hub.deliverRemote(redisChanRelay, encode(relay)); n != 1 {
		t.Fatalf("relay deliveries = %d, want 1", n)
	}
	last := tr.direct()[len(tr.direct())-1]
	if last.event != "offer" || last.payload.(map[string]any)["from"] != "a" {
		t.Fatalf("delivered = %+v", last)
	}

	wrongRoom := relay
	wrongRoom.Room = "r2"
	if n := env.hub.deliverRemote(redisChanRelay, encode(wrongRoom)); n != 0 {
		t.Fatalf("relay into another room delivered %d", n)
	}

	own := relay
	own.Origin = env.hub.instanceID
	if n := env.hub.deliverRemote(redisChanRelay, encode(own)); n != 0 {
		t.Fatalf("own message delivered %d", n)
	}

	env.hub.deliverRemote(redisChanRoom, encode(Message{Origin: "other", Event: "video-seek", Room: "r1", Payload: json.RawMessage(`{"time":3}`)}))
	env.hub.deliverRemote(redisChanRoom, "not json")
	mu.Lock()
	defer mu.Unlock()
	if len(roomCalls) != 1 || roomCalls[0] != "r1/video-seek" {
		t.Fatalf("room emits = %v", roomCalls)
	}
}

func TestRecordOnlineAndStats(t *testing.T) {
	_, rc := newTestRedis(t)
	env := newTestEnv(t, Options{Redis: rc})

	env.hub.recordOnline(3)
	env.hub.recordOnline(2)
	env.hub.recordOnline(0)

	stats := env.hub.Stats(context.Background())
	if stats.PeakToday != 3 || stats.LoginsToday != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	env.hub.rc = nil
	if stats := env.hub.Stats(context.Background()); stats.PeakToday != 0 {
		t.Fatalf("stats without redis = %+v", stats)
	}
}

func TestNormalizePayload(t *testing.T) {
	data, raw, err := normalizePayload(realtime.SignalEnvelope{From: "a", RoomID: "r", Payload: json.RawMessage(`{"candidate":"c"}`)})
	if err != nil {
		t.Fatal(err)
	}
	inner, ok := data.(map[string]any)["payload"].(map[string]any)
	if !ok || inner["candidate"] != "c" {
		t.Fatalf("normalized = %#v", data)
	}
	if !json.Valid(raw) {
		t.Fatal("raw form is not json")
	}
	if _, _, err := normalizePayload(func() {}); err == nil {
		t.Fatal("expected an error for an unencodable payload")
	}
}

func TestHandshakeTokenSources(t *testing.T) {
	if got := tokenFromAuth(map[string]any{"token": " t1 "}); got != "t1" {
		t.Fatalf("tokenFromAuth = %q", got)
	}
	if got := tokenFromAuth("nope"); got != "" {
		t.Fatalf("tokenFromAuth(non-map) = %q", got)
	}
	headers := map[string][]string{"Authorization": {"Bearer abc"}}
	if got := firstValueFromMultiMap(headers, "authorization"); got != "Bearer abc" {
		t.Fatalf("firstValueFromMultiMap = %q", got)
	}
	if got := firstValueFromMultiMap(map[string][]string{"token": {"  "}}, "token"); got != "" {
		t.Fatalf("blank value = %q", got)
	}
}

func TestOriginAllowed(t *testing.T) {
	permissive := newTestEnv(t, Options{})
	if !permissive.hub.originAllowed("https://anything.test") {
		t.Fatal("hub without an origin check rejected an origin")
	}

	env := newTestEnv(t, Options{Origins: func(origin string) bool { return origin == "https://watch.example.com" }})
	if !env.hub.originAllowed("https://watch.example.com") {
		t.Fatal("allowed origin rejected")
	}
	if env.hub.originAllowed("https://evil.test") {
		t.Fatal("foreign origin accepted")
	}
}

func TestPruneStats(t *testing.T) {
	mr, rc := newTestRedis(t)
	env := newTestEnv(t, Options{Redis: rc})

	today := shortDateKey(time.Now())
	old := shortDateKey(time.Now().AddDate(0, 0, -120))
	mr.HSet(redisKeyMaxOnlineCount, today, "4")
	mr.HSet(redisKeyMaxOnlineCount, old, "9")
	mr.HSet(redisKeyMaxOnlineCountTotal, old, "30")

	removed, err := env.hub.PruneStats(context.Background(), 90*24*time.Hour)
	if err != nil {
		t.Fatalf("PruneStats() error = %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if mr.HGet(redisKeyMaxOnlineCount, today) != "4" || mr.HGet(redisKeyMaxOnlineCount, old) != "" {
		t.Fatal("wrong fields pruned")
	}
}
