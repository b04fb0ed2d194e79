package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

// memDirectory is an in-memory Directory. One mutex makes every method atomic,
// which is the contract the gorm store provides with transactions.
type memDirectory struct {
	mu           sync.Mutex
	rooms        map[string]*models.RoomModel
	participants map[string]map[string]*models.ParticipantModel
	users        map[string]*models.UserModel

	deactivateErr error
	saveCalls     int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		rooms:        make(map[string]*models.RoomModel),
		participants: make(map[string]map[string]*models.ParticipantModel),
		users:        make(map[string]*models.UserModel),
	}
}

func (d *memDirectory) addUser(id, name string) *models.UserModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := &models.UserModel{Base: models.Base{ID: id}, Name: name}
	d.users[id] = u
	return u
}

func (d *memDirectory) addRoom(room *models.RoomModel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if room.MaxParticipants == 0 {
		room.MaxParticipants = 10
	}
	if room.Status == "" {
		room.Status = models.RoomStatusWaiting
	}
	d.rooms[room.ID] = room
	d.participants[room.ID] = make(map[string]*models.ParticipantModel)
}

func (d *memDirectory) snapshotLocked(roomID string) *models.RoomModel {
	room := *d.rooms[roomID]
	room.Participants = nil
	for _, p := range d.participants[roomID] {
		if !p.IsActive {
			continue
		}
		cp := *p
		if u, ok := d.users[p.UserID]; ok {
			uc := *u
			cp.User = &uc
		}
		room.Participants = append(room.Participants, cp)
	}
	return &room
}

func (d *memDirectory) recountLocked(roomID string) {
	n := 0
	for _, p := range d.participants[roomID] {
		if p.IsActive {
			n++
		}
	}
	d.rooms[roomID].CurrentParticipants = n
}

func (d *memDirectory) LoadRoom(_ context.Context, roomID string) (*models.RoomModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}
	return d.snapshotLocked(roomID), nil
}

func (d *memDirectory) AdmitParticipant(_ context.Context, roomID, userID string, admit AdmitFunc, now time.Time) (AdmitResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return AdmitResult{}, ErrRoomNotFound
	}
	existing := d.participants[roomID][userID]
	var existingCopy *models.ParticipantModel
	if existing != nil {
		cp := *existing
		existingCopy = &cp
	}
	roomCopy := *room
	if err := admit(&roomCopy, existingCopy); err != nil {
		return AdmitResult{}, err
	}

	wasActive := existing != nil && existing.IsActive
	if existing == nil {
		existing = &models.ParticipantModel{ID: roomID + ":" + userID, RoomID: roomID, UserID: userID, JoinedAt: now}
		d.participants[roomID][userID] = existing
	}
	existing.IsActive = true
	existing.IsHost = room.HostID == userID
	existing.LastSeen = now
	d.recountLocked(roomID)
	return AdmitResult{Room: d.snapshotLocked(roomID), WasActive: wasActive}, nil
}

func (d *memDirectory) DeactivateParticipant(_ context.Context, roomID, userID string, now time.Time) (*models.RoomModel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deactivateErr != nil {
		return nil, d.deactivateErr
	}
	if _, ok := d.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}
	if p, ok := d.participants[roomID][userID]; ok {
		p.IsActive = false
		p.LastSeen = now
	}
	d.recountLocked(roomID)
	return d.snapshotLocked(roomID), nil
}

func (d *memDirectory) TouchParticipant(_ context.Context, roomID, userID string, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.participants[roomID][userID]; ok && p.IsActive {
		p.LastSeen = now
	}
	return nil
}

func (d *memDirectory) SavePlayback(_ context.Context, roomID, hostID string, update PlaybackUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saveCalls++
	room, ok := d.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if room.HostID != hostID {
		return ErrNotHost
	}
	room.Playback = update.Playback
	room.Status = update.Status
	if update.Media != nil {
		room.Media = *update.Media
	}
	return nil
}

func (d *memDirectory) records(roomID, userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.participants[roomID][userID]; ok {
		return 1
	}
	return 0
}

func (d *memDirectory) participant(roomID, userID string) (models.ParticipantModel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.participants[roomID][userID]
	if !ok {
		return models.ParticipantModel{}, false
	}
	return *p, true
}

func (d *memDirectory) room(roomID string) models.RoomModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.rooms[roomID]
}

// assertCountInvariant checks the cached count against the active records.
func (d *memDirectory) assertCountInvariant(t *testing.T, roomID string) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	active := 0
	for _, p := range d.participants[roomID] {
		if p.IsActive {
			active++
		}
	}
	if got := d.rooms[roomID].CurrentParticipants; got != active {
		t.Fatalf("room %s count = %d, active records = %d", roomID, got, active)
	}
}

type onlineCall struct {
	userID string
	online bool
}

type memUsers struct {
	mu    sync.Mutex
	calls []onlineCall
	state map[string]bool
}

func newMemUsers() *memUsers { return &memUsers{state: make(map[string]bool)} }

func (u *memUsers) SetOnline(_ context.Context, userID string, online bool, _ time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, onlineCall{userID, online})
	u.state[userID] = online
	return nil
}

func (u *memUsers) online(userID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state[userID]
}

func (u *memUsers) count(userID string, online bool) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.calls {
		if c.userID == userID && c.online == online {
			n++
		}
	}
	return n
}

// tokenVerifier accepts "token-<userID>" for known users.
type tokenVerifier struct{ dir *memDirectory }

func (v tokenVerifier) Verify(_ context.Context, token string) (*models.UserModel, error) {
	v.dir.mu.Lock()
	defer v.dir.mu.Unlock()
	for id, u := range v.dir.users {
		if token == "token-"+id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errors.New("unknown token")
}

type sentEvent struct {
	Event   OutboundEvent
	Payload any
}

// fakeHub models room channels the way the socket.io adapter does.
type fakeHub struct {
	mu       sync.Mutex
	channels map[string]map[ConnID]*fakeTransport
}

func newFakeHub() *fakeHub {
	return &fakeHub{channels: make(map[string]map[ConnID]*fakeTransport)}
}

type fakeTransport struct {
	id  ConnID
	hub *fakeHub

	mu     sync.Mutex
	events []sentEvent
}

func (h *fakeHub) transport(id ConnID) *fakeTransport {
	return &fakeTransport{id: id, hub: h}
}

func (t *fakeTransport) Emit(event OutboundEvent, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, sentEvent{event, payload})
	return nil
}

func (t *fakeTransport) JoinChannel(roomID string) {
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	if t.hub.channels[roomID] == nil {
		t.hub.channels[roomID] = make(map[ConnID]*fakeTransport)
	}
	t.hub.channels[roomID][t.id] = t
}

func (t *fakeTransport) LeaveChannel(roomID string) {
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	delete(t.hub.channels[roomID], t.id)
}

func (t *fakeTransport) EmitToRoom(roomID string, event OutboundEvent, payload any) {
	t.hub.mu.Lock()
	members := make([]*fakeTransport, 0, len(t.hub.channels[roomID]))
	for id, m := range t.hub.channels[roomID] {
		if id != t.id {
			members = append(members, m)
		}
	}
	t.hub.mu.Unlock()
	for _, m := range members {
		_ = m.Emit(event, payload)
	}
}

func (t *fakeTransport) received(event OutboundEvent) []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []any
	for _, e := range t.events {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (t *fakeTransport) last(event OutboundEvent) (any, bool) {
	got := t.received(event)
	if len(got) == 0 {
		return nil, false
	}
	return got[len(got)-1], true
}

func (t *fakeTransport) reset() {
	t.mu.Lock()
	t.events = nil
	t.mu.Unlock()
}

type recordingForwarder struct {
	mu   sync.Mutex
	msgs []RelayMessage
}

func (f *recordingForwarder) ForwardRelay(msg RelayMessage) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
}

// memPresence is a RoomPresence shared by several services standing in for
// instances behind one Redis.
type memPresence struct {
	mu     sync.Mutex
	leases map[string]map[ConnID]bool
	err    error
}

func newMemPresence() *memPresence {
	return &memPresence{leases: make(map[string]map[ConnID]bool)}
}

func (p *memPresence) Enter(_ context.Context, roomID, userID string, conn ConnID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	key := roomID + "|" + userID
	if p.leases[key] == nil {
		p.leases[key] = make(map[ConnID]bool)
	}
	p.leases[key][conn] = true
	return nil
}

func (p *memPresence) Exit(_ context.Context, roomID, userID string, conn ConnID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	key := roomID + "|" + userID
	delete(p.leases[key], conn)
	return len(p.leases[key]), nil
}

func (p *memPresence) held(roomID, userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leases[roomID+"|"+userID])
}

type harness struct {
	t      *testing.T
	svc    *Service
	dir    *memDirectory
	users  *memUsers
	hub    *fakeHub
	logs   *observer.ObservedLogs
	prefix string
	next   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, newMemDirectory(), newMemUsers(), newFakeHub(), nil, "")
}

// newClusterHarness returns two services with separate registries sharing one
// store, one room channel space and one presence, like two instances.
func newClusterHarness(t *testing.T, presence RoomPresence) (*harness, *harness) {
	t.Helper()
	a := newHarnessWith(t, newMemDirectory(), newMemUsers(), newFakeHub(), presence, "a/")
	b := newHarnessWith(t, a.dir, a.users, a.hub, presence, "b/")
	return a, b
}

func newHarnessWith(t *testing.T, dir *memDirectory, users *memUsers, hub *fakeHub, presence RoomPresence, prefix string) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(zapcore.NewTee(core, zaptest.NewLogger(t).Core()))
	svc := NewService(Options{
		Rooms:    dir,
		Users:    users,
		Verifier: tokenVerifier{dir: dir},
		Presence: presence,
		Logger:   logger,
	})
	return &harness{t: t, svc: svc, dir: dir, users: users, hub: hub, logs: logs, prefix: prefix}
}

// connect opens a connection and, when userID is set, authenticates it.
func (h *harness) connect(userID string) (*Connection, *fakeTransport) {
	h.t.Helper()
	h.next++
	id := ConnID(fmt.Sprintf("%s%s#%d", h.prefix, userID, h.next))
	tr := h.hub.transport(id)
	conn := NewConnection(id, tr)
	if userID != "" {
		if _, err := h.svc.Authenticate(context.Background(), conn, "token-"+userID); err != nil {
			h.t.Fatalf("authenticate %s: %v", userID, err)
		}
	}
	return conn, tr
}

func (h *harness) join(conn *Connection, roomID string) {
	h.t.Helper()
	if _, err := h.svc.Join(context.Background(), conn, JoinRoom{RoomID: roomID}); err != nil {
		h.t.Fatalf("join %s: %v", roomID, err)
	}
}

func newRoom(id, hostID string, capacity int) *models.RoomModel {
	return &models.RoomModel{
		Base:            models.Base{ID: id},
		Name:            "room " + id,
		HostID:          hostID,
		MaxParticipants: capacity,
		Settings:        models.RoomSettings{AllowChat: true, SyncTolerance: 2},
	}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}
