package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
)

type emitted struct {
	event   string
	room    string
	payload any
}

type fakeTransport struct {
	mu     sync.Mutex
	events []emitted
}

func (f *fakeTransport) Emit(event realtime.OutboundEvent, payload any) error {
	data, _, err := normalizePayload(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.events = append(f.events, emitted{event: string(event), payload: data})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) JoinChannel(string)  {}
func (f *fakeTransport) LeaveChannel(string) {}

func (f *fakeTransport) EmitToRoom(roomID string, event realtime.OutboundEvent, payload any) {
	f.mu.Lock()
	f.events = append(f.events, emitted{event: string(event), room: roomID, payload: payload})
	f.mu.Unlock()
}

func (f *fakeTransport) direct() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emitted, 0, len(f.events))
	for _, e := range f.events {
		if e.room == "" {
			out = append(out, e)
		}
	}
	return out
}

type stubDirectory struct {
	mu    sync.Mutex
	rooms map[string]*models.RoomModel
}

func newStubDirectory(roomIDs ...string) *stubDirectory {
	d := &stubDirectory{rooms: make(map[string]*models.RoomModel)}
	for _, id := range roomIDs {
		d.rooms[id] = &models.RoomModel{
			Base:            models.Base{ID: id},
			Name:            "room " + id,
			HostID:          "host",
			MaxParticipants: 10,
			Status:          models.RoomStatusWaiting,
		}
	}
	return d
}

func (d *stubDirectory) LoadRoom(_ context.Context, roomID string) (*models.RoomModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return nil, realtime.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (d *stubDirectory) AdmitParticipant(_ context.Context, roomID, userID string, admit realtime.AdmitFunc, now time.Time) (realtime.AdmitResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return realtime.AdmitResult{}, realtime.ErrRoomNotFound
	}
	if err := admit(r, nil); err != nil {
		return realtime.AdmitResult{}, err
	}
	r.Participants = append(r.Participants, models.ParticipantModel{
		RoomID: roomID, UserID: userID, JoinedAt: now, IsActive: true, LastSeen: now,
		User: &models.UserModel{Base: models.Base{ID: userID}},
	})
	r.CurrentParticipants = len(r.Participants)
	cp := *r
	return realtime.AdmitResult{Room: &cp}, nil
}

func (d *stubDirectory) DeactivateParticipant(_ context.Context, roomID, userID string, _ time.Time) (*models.RoomModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return nil, realtime.ErrRoomNotFound
	}
	kept := r.Participants[:0]
	for _, p := range r.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	r.Participants = kept
	r.CurrentParticipants = len(kept)
	cp := *r
	return &cp, nil
}

func (d *stubDirectory) TouchParticipant(context.Context, string, string, time.Time) error {
	return nil
}

func (d *stubDirectory) SavePlayback(context.Context, string, string, realtime.PlaybackUpdate) error {
	return nil
}

type stubUsers struct{}

func (stubUsers) SetOnline(context.Context, string, bool, time.Time) error { return nil }

// tokenVerifier accepts "token-<id>" and panics on "boom".
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (*models.UserModel, error) {
	if token == "boom" {
		panic("verifier exploded")
	}
	id, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return nil, realtime.ErrInvalidToken
	}
	return &models.UserModel{Base: models.Base{ID: id}, Name: "user " + id}, nil
}

type testEnv struct {
	hub  *Hub
	svc  *realtime.Service
	logs *observer.ObservedLogs
}

func newTestEnv(t *testing.T, opts Options, roomIDs ...string) *testEnv {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(zapcore.NewTee(core, zaptest.NewLogger(t).Core()))
	opts.Logger = logger

	hub := NewHub(opts)
	svc := realtime.NewService(realtime.Options{
		Rooms:     newStubDirectory(roomIDs...),
		Users:     stubUsers{},
		Verifier:  tokenVerifier{},
		Forwarder: hub,
		Presence:  hub.RoomPresence(),
		Logger:    logger,
	})
	hub.svc = svc
	return &testEnv{hub: hub, svc: svc, logs: logs}
}

func (e *testEnv) open(id string) (*session, *fakeTransport) {
	tr := &fakeTransport{}
	s := newSession(realtime.NewConnection(realtime.ConnID(id), tr), e.hub.queueSize)
	e.hub.start(s)
	return s, tr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func eventNames(events []emitted) string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.event)
	}
	return fmt.Sprint(names)
}
