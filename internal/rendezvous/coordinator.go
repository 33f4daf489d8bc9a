package rendezvous

import (
	"log/slog"
)

// ChangeKind distinguishes a membership addition from a removal.
type ChangeKind int

const (
	Add ChangeKind = iota
	Rem
)

// ChangeList is the message-passing coupling between Cluster and the
// ring (spec §9 design note): Cluster only ever emits these records and
// holds no reference to the ring itself; the Coordinator is the single
// mutator.
type ChangeList struct {
	Kind ChangeKind
	Node SocketNode
}

// Coordinator owns the Set behind its internal mutex and is the single
// writer driven off a bounded channel of membership deltas from
// Cluster. A channel-send failure by the producer (Cluster) is treated
// by the producer as fatal, not by the Coordinator — this type only
// ever reads.
type Coordinator struct {
	set     *Set
	changes chan ChangeList
	done    chan struct{}
	log     *slog.Logger
}

// NewCoordinator creates a Coordinator reading change records off ch.
func NewCoordinator(ch chan ChangeList, log *slog.Logger) *Coordinator {
	return &Coordinator{
		set:     NewSet(),
		changes: ch,
		done:    make(chan struct{}),
		log:     log,
	}
}

// Set returns the ring this coordinator mutates, for read-side use by
// walker goroutines.
func (c *Coordinator) Set() *Set { return c.set }

// Run drains the change channel until End is called, applying Add/Rem
// records serially — the ring has exactly one writer.
func (c *Coordinator) Run() {
	for {
		select {
		case ch, ok := <-c.changes:
			if !ok {
				return
			}
			switch ch.Kind {
			case Add:
				c.set.Add(ch.Node)
				c.log.Debug("rendezvous: node added", "node", ch.Node.String())
			case Rem:
				c.set.Remove(ch.Node)
				c.log.Debug("rendezvous: node removed", "node", ch.Node.String())
			}
		case <-c.done:
			return
		}
	}
}

// End signals Run to exit, mirroring the progress worker's EndSync
// fan-out to the cluster and rendezvous components (spec §4.8).
func (c *Coordinator) End() {
	close(c.done)
}
