package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestJoinRequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	h.dir.addRoom(newRoom("r1", "host", 5))
	conn, tr := h.connect("")

	_, err := h.svc.Join(context.Background(), conn, JoinRoom{RoomID: "r1"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Join() error = %v, want ErrUnauthenticated", err)
	}
	if conn.RoomID() != "" || len(tr.events) != 0 {
		t.Fatal("unauthenticated join left state behind")
	}
}

func TestJoinUnknownRoomReleasesChannel(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("a", "Ann")
	conn, _ := h.connect("a")

	_, err := h.svc.Join(context.Background(), conn, JoinRoom{RoomID: "missing"})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Join() error = %v, want ErrRoomNotFound", err)
	}
	if conn.State() != Unjoined || conn.RoomID() != "" {
		t.Fatalf("connection state = %s room %q, want unjoined", conn.State(), conn.RoomID())
	}
	if len(h.hub.channels["missing"]) != 0 {
		t.Fatal("connection still subscribed to the room channel")
	}
}

func TestJoinLeasesRoomPresence(t *testing.T) {
	presence := newMemPresence()
	h, _ := newClusterHarness(t, presence)
	h.dir.addUser("a", "Ann")
	h.dir.addRoom(newRoom("r1", "host", 5))
	h.dir.addRoom(newRoom("r2", "host", 5))
	conn, _ := h.connect("a")

	if _, err := h.svc.Join(context.Background(), conn, JoinRoom{RoomID: "missing"}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Join() error = %v, want ErrRoomNotFound", err)
	}
	if presence.held("missing", "a") != 0 {
		t.Fatal("failed join kept its lease")
	}

	h.join(conn, "r1")
	if presence.held("r1", "a") != 1 {
		t.Fatal("join did not lease the room")
	}
	h.join(conn, "r2")
	if presence.held("r1", "a") != 0 || presence.held("r2", "a") != 1 {
		t.Fatalf("leases after moving rooms: r1=%d r2=%d", presence.held("r1", "a"), presence.held("r2", "a"))
	}
	if err := h.svc.Leave(context.Background(), conn); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if presence.held("r2", "a") != 0 {
		t.Fatal("leave kept its lease")
	}
}

func TestHostJoinsWithWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("host", "Host")
	h.dir.addUser("a", "Ann")
	room := newRoom("r1", "host", 5)
	room.Password = hashPassword(t, "popcorn")
	h.dir.addRoom(room)

	hostConn, _ := h.connect("host")
	if _, err := h.svc.Join(context.Background(), hostConn, JoinRoom{RoomID: "r1", Password: "nachos"}); err != nil {
		t.Fatalf("host Join() with wrong password = %v, want admitted", err)
	}
	guest, _ := h.connect("a")
	if _, err := h.svc.Join(context.Background(), guest, JoinRoom{RoomID: "r1", Password: "nachos"}); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("guest Join() with wrong password = %v, want ErrInvalidPassword", err)
	}
}

func TestJoinEmitsSnapshotAndMembership(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("host", "Host")
	h.dir.addUser("a", "Ann")
	h.dir.addRoom(newRoom("r1", "host", 5))

	hostConn, hostTr := h.connect("host")
	h.join(hostConn, "r1")
	hostTr.reset()

	conn, tr := h.connect("a")
	h.join(conn, "r1")

	got, ok := tr.last(OutRoomJoined)
	if !ok {
		t.Fatal("joiner did not receive room-joined")
	}
	snap := got.(RoomJoinedPayload).Room
	if snap.HostID != "host" || snap.CurrentParticipants != 2 || len(snap.Participants) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	joined, ok := hostTr.last(OutUserJoined)
	if !ok || joined.(MembershipPayload).User.ID != "a" {
		t.Fatalf("host user-joined = %+v, %v", joined, ok)
	}
	roster, ok := hostTr.last(OutParticipantsUpdated)
	if !ok || roster.(ParticipantsPayload).Count != 2 {
		t.Fatalf("host participants-updated = %+v, %v", roster, ok)
	}
	if len(tr.received(OutUserJoined)) != 0 {
		t.Error("joiner received its own user-joined")
	}
	if conn.State() != Joined {
		t.Errorf("state = %s, want joined", conn.State())
	}
}

func TestConcurrentJoinsSameIdentityConverge(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("a", "Ann")
	h.dir.addRoom(newRoom("r1", "host", 10))

	const tabs = 16
	conns := make([]*Connection, tabs)
	for i := range conns {
		conns[i], _ = h.connect("a")
	}

	var wg sync.WaitGroup
	errs := make(chan error, tabs)
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if _, err := h.svc.Join(context.Background(), c, JoinRoom{RoomID: "r1"}); err != nil {
				errs <- err
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent join failed: %v", err)
	}

	if got := h.dir.records("r1", "a"); got != 1 {
		t.Fatalf("participant records = %d, want 1", got)
	}
	p, _ := h.dir.participant("r1", "a")
	if !p.IsActive {
		t.Fatal("participant not active")
	}
	if got := h.dir.room("r1").CurrentParticipants; got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	h.dir.assertCountInvariant(t, "r1")
}

func TestConcurrentJoinsDistinctIdentitiesLoseNothing(t *testing.T) {
	h := newHarness(t)
	h.dir.addRoom(newRoom("r1", "host", 50))

	const users = 20
	conns := make([]*Connection, users)
	for i := range conns {
		id := fmt.Sprintf("u%02d", i)
		h.dir.addUser(id, id)
		conns[i], _ = h.connect(id)
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			_, _ = h.svc.Join(context.Background(), c, JoinRoom{RoomID: "r1"})
		}(c)
	}
	wg.Wait()

	if got := h.dir.room("r1").CurrentParticipants; got != users {
		t.Fatalf("count = %d, want %d", got, users)
	}
	h.dir.assertCountInvariant(t, "r1")
}

func TestCapacityScenario(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"H", "A", "B"} {
		h.dir.addUser(id, id)
	}
	h.dir.addRoom(newRoom("r1", "H", 2))

	hostConn, _ := h.connect("H")
	h.join(hostConn, "r1")

	a, _ := h.connect("A")
	h.join(a, "r1")
	if got := h.dir.room("r1").CurrentParticipants; got != 2 {
		t.Fatalf("count after A = %d, want 2", got)
	}

	b, bTr := h.connect("B")
	h.svc.Dispatch(context.Background(), b, JoinRoom{RoomID: "r1"})
	errPayload, ok := bTr.last(OutError)
	if !ok || errPayload.(ErrorPayload).Code != CodeRoomFull {
		t.Fatalf("B error = %+v, %v; want ROOM_FULL", errPayload, ok)
	}
	if b.RoomID() != "" {
		t.Fatal("rejected join kept a room binding")
	}
	h.dir.assertCountInvariant(t, "r1")

	if err := h.svc.Leave(context.Background(), hostConn); err != nil {
		t.Fatalf("host leave: %v", err)
	}
	if got := h.dir.room("r1").CurrentParticipants; got != 1 {
		t.Fatalf("count after host leave = %d, want 1", got)
	}

	h.join(b, "r1")
	if got := h.dir.room("r1").CurrentParticipants; got != 2 {
		t.Fatalf("count after B retry = %d, want 2", got)
	}
	h.dir.assertCountInvariant(t, "r1")
}

func TestJoinSecondRoomLeavesFirst(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("a", "Ann")
	h.dir.addUser("o", "Other")
	h.dir.addRoom(newRoom("r1", "host", 5))
	h.dir.addRoom(newRoom("r2", "host", 5))

	other, otherTr := h.connect("o")
	h.join(other, "r1")

	conn, _ := h.connect("a")
	h.join(conn, "r1")
	otherTr.reset()

	h.join(conn, "r2")

	if conn.RoomID() != "r2" {
		t.Fatalf("room = %q, want r2", conn.RoomID())
	}
	p, _ := h.dir.participant("r1", "a")
	if p.IsActive {
		t.Fatal("participant still active in the previous room")
	}
	if _, ok := otherTr.last(OutUserLeft); !ok {
		t.Fatal("previous room did not see user-left")
	}
	if _, member := h.hub.channels["r1"][conn.ID()]; member {
		t.Fatal("connection still subscribed to the previous room")
	}
	h.dir.assertCountInvariant(t, "r1")
	h.dir.assertCountInvariant(t, "r2")
}

func TestRejoinSameRoomIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("a", "Ann")
	h.dir.addUser("o", "Other")
	h.dir.addRoom(newRoom("r1", "host", 5))

	other, otherTr := h.connect("o")
	h.join(other, "r1")
	conn, tr := h.connect("a")
	h.join(conn, "r1")
	otherTr.reset()

	h.join(conn, "r1")

	if got := len(tr.received(OutRoomJoined)); got != 2 {
		t.Fatalf("room-joined count = %d, want 2", got)
	}
	if len(otherTr.received(OutUserLeft)) != 0 || len(otherTr.received(OutUserJoined)) != 0 {
		t.Fatal("rejoin broadcast leave or join to the room")
	}
	if got := h.dir.room("r1").CurrentParticipants; got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestSecondTabJoinDoesNotAnnounceUser(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("a", "Ann")
	h.dir.addUser("o", "Other")
	h.dir.addRoom(newRoom("r1", "host", 5))

	other, otherTr := h.connect("o")
	h.join(other, "r1")
	tab1, _ := h.connect("a")
	h.join(tab1, "r1")
	otherTr.reset()

	tab2, _ := h.connect("a")
	h.join(tab2, "r1")

	if len(otherTr.received(OutUserJoined)) != 0 {
		t.Fatal("second tab announced user-joined again")
	}
	if _, ok := otherTr.last(OutParticipantsUpdated); !ok {
		t.Fatal("second tab join did not broadcast the roster")
	}
}

func TestLeave(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("a", "Ann")
	h.dir.addRoom(newRoom("r1", "host", 5))
	conn, tr := h.connect("a")

	if err := h.svc.Leave(context.Background(), conn); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("Leave() before join = %v, want ErrNotInRoom", err)
	}

	h.join(conn, "r1")
	if err := h.svc.Leave(context.Background(), conn); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	left, ok := tr.last(OutRoomLeft)
	if !ok || left.(RoomLeftPayload).RoomID != "r1" {
		t.Fatalf("room-left = %+v, %v", left, ok)
	}
	p, _ := h.dir.participant("r1", "a")
	if p.IsActive {
		t.Fatal("participant still active after leave")
	}
	if got := h.dir.records("r1", "a"); got != 1 {
		t.Fatalf("records after leave = %d, want 1 (kept for history)", got)
	}
	if conn.State() != Unjoined {
		t.Fatalf("state = %s, want unjoined", conn.State())
	}
}

func TestLeaveStoreFailureStillClearsBinding(t *testing.T) {
	h := newHarness(t)
	h.dir.addUser("a", "Ann")
	h.dir.addRoom(newRoom("r1", "host", 5))
	conn, tr := h.connect("a")
	h.join(conn, "r1")

	h.dir.deactivateErr = errors.New("db down")
	h.svc.Dispatch(context.Background(), conn, LeaveRoom{})

	if conn.RoomID() != "" {
		t.Fatal("binding not cleared after store failure")
	}
	got, ok := tr.last(OutError)
	if !ok || got.(ErrorPayload).Code != CodeInternal || got.(ErrorPayload).Op != InLeaveRoom {
		t.Fatalf("error payload = %+v, %v", got, ok)
	}
}
