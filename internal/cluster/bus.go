package cluster

import (
	"log/slog"
	"net"
	"sync"
	"time"
)

// Bus is the many-to-many transport described in spec §4.2: every Send
// is delivered to every currently-connected peer exactly once if
// possible. A dial or write failure marks that peer NotReady; it is
// logged and dropped rather than retried, and a failed write also
// drops the connection. Broadcast never re-dials: the peer is dialed
// again only by a later Connect or SendTo for it. Grounded on the teacher's HTTP peer-ping loop
// (internal/ha/cluster.go pingPeer) but redesigned as a persistent
// socket mesh instead of a request/response poll, per the bus-topology
// requirement.
type Bus struct {
	mu    sync.Mutex
	conns map[string]net.Conn
	log   *slog.Logger

	listener net.Listener
	incoming chan Message
}

// NewBus listens on localAddr and returns a Bus ready to accept and dial
// peer connections.
func NewBus(localAddr string, log *slog.Logger) (*Bus, error) {
	ln, err := net.Listen("tcp", localAddr)
	if err != nil {
		return nil, err
	}
	b := &Bus{
		conns:    make(map[string]net.Conn),
		log:      log,
		listener: ln,
		incoming: make(chan Message, 64),
	}
	go b.acceptLoop()
	return b, nil
}

func (b *Bus) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		go b.readLoop(conn)
	}
}

func (b *Bus) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		msg, err := Decode(conn)
		if err != nil {
			b.log.Debug("bus: decode dropped", "err", err)
			return
		}
		b.incoming <- msg
	}
}

// Connect dials peer if not already connected. Failure is non-fatal:
// the peer is simply not reachable for this send.
func (b *Bus) Connect(peer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[peer]; ok {
		return
	}
	conn, err := net.DialTimeout("tcp", peer, 5*time.Second)
	if err != nil {
		b.log.Debug("bus: dial failed, not ready", "peer", peer, "err", err)
		return
	}
	b.conns[peer] = conn
	go b.readLoop(conn)
}

// Broadcast sends m to every currently connected peer, tolerating
// partial delivery. Dead connections are dropped from the pool.
func (b *Bus) Broadcast(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	payload := Encode(m)
	for peer, conn := range b.conns {
		if _, err := conn.Write(payload); err != nil {
			b.log.Debug("bus: write not ready, dropping peer conn", "peer", peer, "err", err)
			conn.Close()
			delete(b.conns, peer)
		}
	}
}

// SendTo delivers m to a single peer, dialing first if necessary.
func (b *Bus) SendTo(peer string, m Message) {
	b.Connect(peer)
	b.mu.Lock()
	conn, ok := b.conns[peer]
	b.mu.Unlock()
	if !ok {
		return
	}
	if _, err := conn.Write(Encode(m)); err != nil {
		b.log.Debug("bus: sendTo not ready", "peer", peer, "err", err)
		b.mu.Lock()
		conn.Close()
		delete(b.conns, peer)
		b.mu.Unlock()
	}
}

// Recv returns the channel of decoded inbound messages.
func (b *Bus) Recv() <-chan Message { return b.incoming }

// Poll blocks up to timeout waiting for an inbound message, returning
// ok=false on timeout (spec §4.2 step 3: poll the socket with
// timeout=interval).
func (b *Bus) Poll(timeout time.Duration) (Message, bool) {
	select {
	case m := <-b.incoming:
		return m, true
	case <-time.After(timeout):
		return Message{}, false
	}
}

// Close tears down the listener and all peer connections.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.Close()
	}
	return b.listener.Close()
}
