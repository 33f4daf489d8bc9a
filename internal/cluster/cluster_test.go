package cluster

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/4nonx/syncd/internal/rendezvous"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(t *testing.T, lifetime int) (*Manager, chan rendezvous.ChangeList) {
	t.Helper()
	bus, err := NewBus("127.0.0.1:0", testLogger())
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	changes := make(chan rendezvous.ChangeList, 16)
	addr := bus.listener.Addr().String()
	return NewManager(addr, lifetime, bus, changes, testLogger()), changes
}

func TestNewManager_LocalNodeStartsLive(t *testing.T) {
	m, _ := newTestManager(t, 5)
	snap := m.Snapshot()
	local, ok := snap[m.localEndpoint]
	if !ok {
		t.Fatal("local node missing from snapshot")
	}
	if local.Liveness != 5 || !local.HasHeartbeat {
		t.Fatalf("expected local node live at full lifetime, got %+v", local)
	}
}

func TestJoin_AddsPeersAsDead(t *testing.T) {
	m, _ := newTestManager(t, 5)
	m.Join([]string{"10.0.0.9:7000"})

	snap := m.Snapshot()
	peer, ok := snap["10.0.0.9:7000"]
	if !ok {
		t.Fatal("peer not recorded after Join")
	}
	if peer.Liveness != 0 || peer.HasHeartbeat {
		t.Fatalf("expected freshly joined peer dead until first beat, got %+v", peer)
	}
}

func TestDispatchHeartbeat_RevivesDeadPeerAndEmitsAdd(t *testing.T) {
	m, changes := newTestManager(t, 5)
	m.Join([]string{"10.0.0.9:7000"})

	if err := m.dispatch(Message{Type: HEARTBEAT, Members: []string{"10.0.0.9:7000"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	snap := m.Snapshot()
	peer := snap["10.0.0.9:7000"]
	if peer.Liveness != 5 || !peer.HasHeartbeat {
		t.Fatalf("expected peer revived, got %+v", peer)
	}

	select {
	case c := <-changes:
		if c.Kind != rendezvous.Add {
			t.Fatalf("expected Add change, got %v", c.Kind)
		}
	default:
		t.Fatal("expected a ring change to be emitted for a dead->alive transition")
	}
}

func TestDispatchHeartbeat_UnknownPeerAutoRegisters(t *testing.T) {
	m, _ := newTestManager(t, 5)

	if err := m.dispatch(Message{Type: HEARTBEAT, Members: []string{"10.0.0.5:7000"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	snap := m.Snapshot()
	if _, ok := snap["10.0.0.5:7000"]; !ok {
		t.Fatal("unknown peer should auto-register on heartbeat")
	}
}

func TestDispatchNodelist_AcceptsOnceThenIgnores(t *testing.T) {
	m, _ := newTestManager(t, 5)

	if err := m.dispatch(Message{Type: NODELIST, Members: []string{"10.0.0.1:1", "10.0.0.2:2"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !m.HasNodelist() {
		t.Fatal("expected hasNodelist=true after accepting a NODELIST")
	}
	snap := m.Snapshot()
	if len(snap) != 3 { // local + 2 peers
		t.Fatalf("expected 3 known nodes, got %d", len(snap))
	}

	// A second NODELIST must be ignored (spec §4.2 step 4).
	if err := m.dispatch(Message{Type: NODELIST, Members: []string{"10.0.0.3:3"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, ok := m.Snapshot()["10.0.0.3:3"]; ok {
		t.Fatal("second NODELIST should have been ignored once hasNodelist is true")
	}
}

func TestDispatchHeartbeat_DoesNotSetNodelistBeforeBootstrap(t *testing.T) {
	m, _ := newTestManager(t, 5)
	// No NODELIST received yet, so a HEARTBEAT from an unknown peer
	// should trigger a GETLIST bootstrap back to the sender (piggyback).
	if m.HasNodelist() {
		t.Fatal("expected hasNodelist=false before any NODELIST")
	}
	if err := m.dispatch(Message{Type: HEARTBEAT, Members: []string{"10.0.0.7:7000"}}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	// We cannot observe the actual bootstrap send without a live peer
	// listener, but dispatch must not flip hasNodelist on a HEARTBEAT.
	if m.HasNodelist() {
		t.Fatal("a HEARTBEAT alone must not set hasNodelist")
	}
}

func TestRun_TimesOutWithoutNodelist(t *testing.T) {
	m, _ := newTestManager(t, 1)
	m.joinStarted = time.Now().Add(-10 * time.Second)
	err := m.Run()
	if err == nil {
		t.Fatal("expected join timeout error")
	}
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
