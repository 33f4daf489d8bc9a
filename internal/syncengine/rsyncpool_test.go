package syncengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/4nonx/syncd/internal/fsabs"
	"github.com/4nonx/syncd/internal/fsabs/osfs"
	"github.com/4nonx/syncd/internal/rendezvous"
)

func singleOwnerRing(endpoint string) *rendezvous.Set {
	s := rendezvous.NewSet()
	s.Add(rendezvous.ParseSocketNode(endpoint))
	return s
}

func runPoolToCompletion(t *testing.T, p *Pool, entries []fsabs.Entry) []ProgressMessage {
	t.Helper()
	entryCh := make(chan fsabs.Entry, len(entries))
	progressCh := make(chan ProgressMessage, 256)
	p.Entries = entryCh
	p.Progress = progressCh
	for _, e := range entries {
		entryCh <- e
	}
	close(entryCh)

	done := make(chan struct{})
	go func() { p.Run(); close(done) }()
	<-done
	close(progressCh)

	var msgs []ProgressMessage
	for m := range progressCh {
		msgs = append(msgs, m)
	}
	return msgs
}

func TestPool_SyncFile_CopiesNewFile(t *testing.T) {
	srcDir, destDir := t.TempDir(), t.TempDir()
	mustWriteFile(t, srcDir, "a.txt", "hello world")

	const local = "127.0.0.1:9000"
	p := &Pool{
		LocalEndpoint: local,
		Ring:          singleOwnerRing(local),
		NewSrcFS:      func() fsabs.FileSystem { return osfs.New(srcDir, fsabs.POSIX) },
		NewDestFS:     func() fsabs.FileSystem { return osfs.New(destDir, fsabs.POSIX) },
		N:             2,
		SIDCache:      NewSIDCache(),
	}

	srcFS := osfs.New(srcDir, fsabs.POSIX)
	st, err := srcFS.Stat("a.txt")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	entry := fsabs.Entry{Path: "a.txt", Meta: &st}

	msgs := runPoolToCompletion(t, p, []fsabs.Entry{entry})

	content, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	if err != nil {
		t.Fatalf("read dest file: %v", err)
	}
	if string(content) != "hello world" {
		t.Fatalf("dest content = %q, want %q", content, "hello world")
	}

	var sawCopied bool
	for _, m := range msgs {
		if m.Kind == DoneSyncing && m.Outcome == FileCopied {
			sawCopied = true
			if m.SrcHash == "" || m.SrcHash != m.DstHash {
				t.Fatalf("expected matching non-empty hashes, got src=%q dst=%q", m.SrcHash, m.DstHash)
			}
		}
	}
	if !sawCopied {
		t.Fatalf("expected a FileCopied DoneSyncing message, got %+v", msgs)
	}
}

func TestPool_SyncFile_IdempotentSecondRun(t *testing.T) {
	srcDir, destDir := t.TempDir(), t.TempDir()
	mustWriteFile(t, srcDir, "a.txt", "hello world")

	const local = "127.0.0.1:9001"
	newPool := func() *Pool {
		return &Pool{
			LocalEndpoint: local,
			Ring:          singleOwnerRing(local),
			NewSrcFS:      func() fsabs.FileSystem { return osfs.New(srcDir, fsabs.POSIX) },
			NewDestFS:     func() fsabs.FileSystem { return osfs.New(destDir, fsabs.POSIX) },
			N:             1,
			SIDCache:      NewSIDCache(),
		}
	}

	srcFS := osfs.New(srcDir, fsabs.POSIX)
	st, _ := srcFS.Stat("a.txt")
	entry := fsabs.Entry{Path: "a.txt", Meta: &st}

	runPoolToCompletion(t, newPool(), []fsabs.Entry{entry})
	msgs := runPoolToCompletion(t, newPool(), []fsabs.Entry{entry})

	for _, m := range msgs {
		if m.Kind == DoneSyncing && m.Outcome != UpToDate {
			t.Fatalf("second run outcome = %v, want UpToDate (sync idempotence)", m.Outcome)
		}
	}
}

func TestPool_SkipsEntriesNotOwnedByLocalNode(t *testing.T) {
	srcDir, destDir := t.TempDir(), t.TempDir()
	mustWriteFile(t, srcDir, "a.txt", "hello world")

	ring := rendezvous.NewSet()
	ring.Add(rendezvous.ParseSocketNode("10.0.0.1:9000"))
	ring.Add(rendezvous.ParseSocketNode("10.0.0.2:9000"))

	srcFS := osfs.New(srcDir, fsabs.POSIX)
	st, _ := srcFS.Stat("a.txt")
	entry := fsabs.Entry{Path: "a.txt", Meta: &st}

	owner, _ := ring.Owner("a.txt")
	notOwner := "10.0.0.1:9000"
	if owner.String() == notOwner {
		notOwner = "10.0.0.2:9000"
	}

	p := &Pool{
		LocalEndpoint: notOwner,
		Ring:          ring,
		NewSrcFS:      func() fsabs.FileSystem { return osfs.New(srcDir, fsabs.POSIX) },
		NewDestFS:     func() fsabs.FileSystem { return osfs.New(destDir, fsabs.POSIX) },
		N:             1,
		SIDCache:      NewSIDCache(),
	}
	runPoolToCompletion(t, p, []fsabs.Entry{entry})

	if _, err := os.Stat(filepath.Join(destDir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("a.txt should not have been synced by a non-owning node")
	}
}
