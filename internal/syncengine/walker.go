package syncengine

import (
	"path/filepath"
	"sync"

	"github.com/4nonx/syncd/internal/fsabs"
)

// Walker performs the parallel recursive directory enumeration of spec
// §4.4: for every entry visited it emits an fsabs.Entry plus a Todo
// progress record, recurses into subdirectories through a bounded
// goroutine pool, and deletes destination children that don't
// correspond to a source entry (orphan GC). Orphan files and empty
// orphan directories are removed; a non-empty orphan directory is left
// in place and its removal error is ignored. The walker is oblivious to
// rendezvous ownership — that filter lives at the rsync worker pool
// (spec §4.4 step 5), so this path stays lock-free with respect to the
// ring.
//
// Each recursive call opens its own pair of filesystem handles via
// NewSrcFS/NewDestFS rather than sharing the caller's, since
// fsabs.FileSystem handles are not meant to be used from more than one
// goroutine at a time (spec §5, §6).
type Walker struct {
	NewSrcFS    func() fsabs.FileSystem
	NewDestFS   func() fsabs.FileSystem
	Entries     chan<- fsabs.Entry
	Progress    chan<- ProgressMessage
	MaxParallel int
}

// Run walks from the filesystem root ("") to completion, returning the
// first error encountered by any recursive branch.
func (w *Walker) Run() error {
	n := w.MaxParallel
	if n < 1 {
		n = 1
	}
	sem := make(chan struct{}, n)

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error
	setErr := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	wg.Add(1)
	w.walk("", sem, &wg, setErr)
	wg.Wait()
	return firstErr
}

func (w *Walker) walk(rel string, sem chan struct{}, wg *sync.WaitGroup, setErr func(error)) {
	defer wg.Done()

	srcFS := w.NewSrcFS()
	destFS := w.NewDestFS()

	entries, err := srcFS.Opendir(rel)
	if err != nil {
		setErr(&Error{Kind: ErrFS, Path: rel, Err: err})
		return
	}

	var expected []string
	for _, de := range entries {
		if de.Name == "." || de.Name == ".." {
			continue
		}
		childRel := filepath.Join(rel, de.Name)
		expected = append(expected, de.Name)

		entry := fsabs.Entry{Path: childRel, IsDir: de.IsDir, IsLnk: de.IsLnk}
		if st, statErr := srcFS.Stat(childRel); statErr == nil {
			entry.Meta = &st
		}
		w.Entries <- entry
		if entry.Meta != nil {
			w.Progress <- ProgressMessage{Kind: Todo, NumFiles: 1, TotSize: entry.Meta.Size}
		}

		if de.IsDir {
			wg.Add(1)
			select {
			case sem <- struct{}{}:
				go func(r string) {
					defer func() { <-sem }()
					w.walk(r, sem, wg, setErr)
				}(childRel)
			default:
				// Pool saturated: recurse inline instead of blocking
				// this goroutine forever on a free slot.
				w.walk(childRel, sem, wg, setErr)
			}
		}
	}

	destEntries, err := destFS.Opendir(rel)
	if err != nil {
		return // destination directory doesn't exist yet: nothing to GC
	}
	for _, de := range destEntries {
		if de.Name == "." || de.Name == ".." {
			continue
		}
		var hit bool
		expected, hit = removeFirstHit(expected, de.Name)
		if hit {
			continue
		}
		childRel := filepath.Join(rel, de.Name)
		if err := destFS.Unlink(childRel); err != nil {
			_ = destFS.Rmdir(childRel)
		}
	}
}

// removeFirstHit implements spec §4.4 step 4's contains-and-remove-
// first-hit orphan check: a destination child matches at most one
// expected source name, so repeated children sharing a name are each
// tolerated individually rather than all matching the same entry.
func removeFirstHit(expected []string, name string) ([]string, bool) {
	for i, e := range expected {
		if e == name {
			return append(expected[:i], expected[i+1:]...), true
		}
	}
	return expected, false
}
