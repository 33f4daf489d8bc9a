package rendezvous

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCoordinator_AppliesAddThenRem(t *testing.T) {
	ch := make(chan ChangeList, 4)
	c := NewCoordinator(ch, testLogger())
	go c.Run()
	defer c.End()

	node := ParseSocketNode("10.0.0.1:9000")
	ch <- ChangeList{Kind: Add, Node: node}

	waitFor(t, func() bool { return c.Set().Len() == 1 })

	ch <- ChangeList{Kind: Rem, Node: node}
	waitFor(t, func() bool { return c.Set().Len() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
