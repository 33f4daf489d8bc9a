// Package cluster implements the bus-topology membership protocol
// described in spec §4.2: nodes exchange GETLIST/NODELIST/HEARTBEAT
// records until every live node's membership view converges, emitting
// ring deltas to the rendezvous coordinator as peers come and go.
// Grounded on the teacher's internal/ha.Manager (NewManager/Status/
// RegisterPeer/heartbeatLoop shape) but redesigned from an HTTP
// active/standby poll into the spec's bus-socket gossip state machine.
package cluster

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/4nonx/syncd/internal/rendezvous"
)

// ErrKind enumerates the cluster-facing slice of spec §7's error kinds.
type ErrKind string

const (
	ErrHeartbeat ErrKind = "Heartbeat"
	ErrAddrParse ErrKind = "AddrParse"
	ErrTimeout   ErrKind = "Timeout"
	ErrChannel   ErrKind = "ChannelError"
)

// Error is a typed cluster-protocol error carrying its Kind for the
// audit sink.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("cluster: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Manager is the per-node membership state machine.
type Manager struct {
	mu sync.Mutex

	localEndpoint string
	lifetime      int
	bus           *Bus
	pulse         *Pulse
	nodeList      *NodeList
	nodeMap       *NodeMap
	hasNodelist   bool
	joinStarted   time.Time

	changes chan rendezvous.ChangeList
	stopCh  chan struct{}
	log     *slog.Logger
}

// NewManager constructs a Manager bound to localEndpoint, with the
// given lifetime (heartbeat grace, in ticks) and a change channel the
// rendezvous Coordinator reads from.
func NewManager(localEndpoint string, lifetime int, bus *Bus, changes chan rendezvous.ChangeList, log *slog.Logger) *Manager {
	m := &Manager{
		localEndpoint: localEndpoint,
		lifetime:      lifetime,
		bus:           bus,
		pulse:         NewPulse(DefaultInterval),
		nodeList:      newNodeList(),
		nodeMap:       newNodeMap(),
		changes:       changes,
		stopCh:        make(chan struct{}),
		log:           log,
	}
	m.nodeList.Append(localEndpoint)
	m.nodeMap.put(newLocalNode(localEndpoint, lifetime))
	return m
}

// Join registers the initial peer set from config (excluding self) and
// dials each — mirrors loading `nodes` from the JSON config at startup
// (spec §6).
func (m *Manager) Join(peers []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range peers {
		if p == m.localEndpoint {
			continue
		}
		if !m.nodeList.Contains(p) {
			m.nodeList.Append(p)
			m.nodeMap.put(newNode(p, m.lifetime))
		}
		m.bus.Connect(p)
	}
	m.joinStarted = time.Now()
}

// Stop requests the Run loop to exit at its next iteration.
func (m *Manager) Stop() { close(m.stopCh) }

// Run drives the main loop described in spec §4.2 until Stop is called
// or a fatal join timeout occurs.
func (m *Manager) Run() error {
	m.mu.Lock()
	if m.joinStarted.IsZero() {
		m.joinStarted = time.Now()
	}
	m.mu.Unlock()

	for {
		select {
		case <-m.stopCh:
			return nil
		default:
		}

		m.mu.Lock()
		noList := !m.hasNodelist
		started := m.joinStarted
		m.mu.Unlock()
		if noList && time.Since(started) > time.Duration(5*m.lifetime)*time.Second {
			return &Error{Kind: ErrTimeout, Err: fmt.Errorf("no NODELIST within %d seconds", 5*m.lifetime)}
		}

		if msg, ok := m.bus.Poll(DefaultInterval); ok {
			if err := m.dispatch(msg); err != nil {
				m.log.Warn("cluster: dispatch error", "err", err)
			}
		}

		if m.pulse.Beat() {
			m.onBeat()
		}
	}
}

func (m *Manager) dispatch(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lifetime <= 0 {
		return &Error{Kind: ErrHeartbeat, Err: fmt.Errorf("invalid lifetime %d", m.lifetime)}
	}

	switch msg.Type {
	case NODELIST:
		if m.hasNodelist {
			return nil
		}
		if len(msg.Members) == 0 {
			return &Error{Kind: ErrHeartbeat, Err: fmt.Errorf("empty NODELIST")}
		}
		accepted := 0
		for _, ep := range msg.Members {
			if ep == "" {
				continue
			}
			if !m.nodeList.Contains(ep) {
				m.nodeList.Append(ep)
				m.nodeMap.put(newNode(ep, m.lifetime))
			}
			m.bus.Connect(ep)
			accepted++
		}
		m.hasNodelist = accepted > 0
		return nil

	case GETLIST:
		if len(msg.Members) != 1 {
			return &Error{Kind: ErrAddrParse, Err: fmt.Errorf("GETLIST wants 1 member, got %d", len(msg.Members))}
		}
		sender := msg.Members[0]
		m.addLivePeer(sender)
		m.bus.Broadcast(Message{Type: NODELIST, Members: m.nodeList.Endpoints()})
		return nil

	case HEARTBEAT:
		if len(msg.Members) != 1 {
			return &Error{Kind: ErrAddrParse, Err: fmt.Errorf("HEARTBEAT wants 1 member, got %d", len(msg.Members))}
		}
		sender := msg.Members[0]
		n, ok := m.nodeMap.get(sender)
		if !ok {
			m.addLivePeer(sender)
		} else {
			wasDead := n.Liveness <= 0
			n.heartbeatReceived()
			if wasDead {
				m.emitChange(rendezvous.Add, sender)
			}
		}
		if !m.hasNodelist {
			m.bus.SendTo(sender, Message{Type: GETLIST, Members: []string{m.localEndpoint}})
		}
		return nil

	default:
		return &Error{Kind: ErrAddrParse, Err: fmt.Errorf("unknown message type %v", msg.Type)}
	}
}

// addLivePeer inserts (or revives) a peer as live. It takes no lock of
// its own: the caller must already hold m.mu, as every caller in this
// file does.
func (m *Manager) addLivePeer(endpoint string) {
	if !m.nodeList.Contains(endpoint) {
		m.nodeList.Append(endpoint)
	}
	n, ok := m.nodeMap.get(endpoint)
	if !ok {
		n = newNode(endpoint, m.lifetime)
		m.nodeMap.put(n)
	}
	wasDead := n.Liveness <= 0
	n.heartbeatReceived()
	m.bus.Connect(endpoint)
	if wasDead {
		m.emitChange(rendezvous.Add, endpoint)
	}
}

func (m *Manager) emitChange(kind rendezvous.ChangeKind, endpoint string) {
	select {
	case m.changes <- rendezvous.ChangeList{Kind: kind, Node: rendezvous.ParseSocketNode(endpoint)}:
	default:
		// A full channel here means the coordinator has stopped draining
		// while membership keeps changing: a fatal invariant violation.
		// The send does not block (this call holds m.mu); the process
		// aborts with a diagnostic instead of losing the ring update.
		m.log.Error("cluster: change channel full, aborting", "kind", kind, "endpoint", endpoint)
		panic(fmt.Sprintf("cluster: rendezvous change channel full (kind=%v endpoint=%s)", kind, endpoint))
	}
}

func (m *Manager) onBeat() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasNodelist {
		m.bus.Broadcast(Message{Type: GETLIST, Members: []string{m.localEndpoint}})
	}
	m.bus.Broadcast(Message{Type: HEARTBEAT, Members: []string{m.localEndpoint}})

	for ep, n := range m.nodeMap.nodes {
		if ep == m.localEndpoint {
			continue
		}
		if !n.HasHeartbeat {
			if n.tickdown() {
				m.emitChange(rendezvous.Rem, ep)
			}
		} else {
			n.HasHeartbeat = false
		}
	}
}

// Snapshot returns the current membership view for status reporting.
func (m *Manager) Snapshot() map[string]Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodeMap.Snapshot()
}

// HasNodelist reports whether this node has completed initial join.
func (m *Manager) HasNodelist() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasNodelist
}
