package syncengine

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/4nonx/syncd/internal/fsabs"
	"github.com/4nonx/syncd/internal/rendezvous"
)

// defaultMaxSymlinkLen bounds a symlink target read from the source,
// guarding against an unbounded allocation if the remote filesystem
// reports a corrupt link.
const defaultMaxSymlinkLen = 4096

// Pool is the fixed-size rsync worker pool of spec §4.5: N goroutines
// consuming a single entries channel, each holding its own
// (source, destination) filesystem handle pair since fsabs.FileSystem
// handles are not safe to share across goroutines. Every entry is
// filtered by rendezvous ownership here, at the consumer side, rather
// than by the walker (spec §4.4 step 5).
type Pool struct {
	LocalEndpoint string
	Ring          *rendezvous.Set
	NewSrcFS      func() fsabs.FileSystem
	NewDestFS     func() fsabs.FileSystem
	Entries       <-chan fsabs.Entry
	Progress      chan<- ProgressMessage
	N             int
	SIDCache      *SIDCache
	Resolver      NameResolver
	MaxSymlinkLen int
}

// Run spawns N workers and blocks until Entries is drained and closed.
func (p *Pool) Run() {
	n := p.N
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker()
		}()
	}
	wg.Wait()
}

func (p *Pool) worker() {
	srcFS := p.NewSrcFS()
	destFS := p.NewDestFS()
	for e := range p.Entries {
		owner, ok := p.Ring.Owner(e.Path)
		if !ok || owner.String() != p.LocalEndpoint {
			continue
		}

		p.Progress <- ProgressMessage{Kind: StartSync, Path: e.Path}
		outcome, srcHash, dstHash, err := p.sync(srcFS, destFS, e)
		if err != nil {
			p.Progress <- ProgressMessage{Kind: SendError, Path: e.Path, Err: err}
			continue
		}
		p.Progress <- ProgressMessage{
			Kind: DoneSyncing, Path: e.Path, Outcome: outcome,
			SrcHash: srcHash.String(), DstHash: dstHash.String(), FileSize: sizeOf(e),
		}
	}
}

func sizeOf(e fsabs.Entry) int64 {
	if e.Meta == nil {
		return 0
	}
	return e.Meta.Size
}

func (p *Pool) maxSymlinkLen() int {
	if p.MaxSymlinkLen > 0 {
		return p.MaxSymlinkLen
	}
	return defaultMaxSymlinkLen
}

// sync implements spec §4.5 steps 1-5: ensure the parent directory
// chain exists, then dispatch by entry kind.
func (p *Pool) sync(srcFS, destFS fsabs.FileSystem, e fsabs.Entry) (Outcome, Hash128, Hash128, error) {
	if err := ensureParents(srcFS, destFS, e.Path); err != nil {
		return UpToDate, Hash128{}, Hash128{}, &Error{Kind: ErrFS, Path: e.Path, Err: err}
	}

	switch {
	case e.IsLnk:
		o, err := p.syncSymlink(srcFS, destFS, e)
		return o, Hash128{}, Hash128{}, err
	case e.IsDir:
		o, err := p.syncDir(srcFS, destFS, e)
		return o, Hash128{}, Hash128{}, err
	default:
		return p.syncFile(srcFS, destFS, e)
	}
}

// ensureParents creates any missing ancestor directories of relPath,
// shallowest first, copying the source directory's mode bits where
// available (spec §4.5 step 2).
func ensureParents(srcFS, destFS fsabs.FileSystem, relPath string) error {
	dir := filepath.Dir(relPath)
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	if err := ensureParents(srcFS, destFS, dir); err != nil {
		return err
	}
	if _, err := destFS.Stat(dir); err == nil {
		return nil
	}
	mode := uint32(0o755)
	if st, err := srcFS.Stat(dir); err == nil {
		mode = st.Mode
	}
	return destFS.Mkdir(dir, mode)
}

func (p *Pool) syncSymlink(srcFS, destFS fsabs.FileSystem, e fsabs.Entry) (Outcome, error) {
	if srcFS.Family() != fsabs.POSIX {
		return UpToDate, &Error{Kind: ErrFS, Path: e.Path, Err: fmt.Errorf("symlinks are only meaningful on the POSIX-style source")}
	}
	target, err := srcFS.Readlink(e.Path)
	if err != nil {
		return UpToDate, &Error{Kind: ErrIO, Path: e.Path, Err: err}
	}
	if len(target) > p.maxSymlinkLen() {
		return UpToDate, &Error{Kind: ErrIO, Path: e.Path, Err: fmt.Errorf("symlink target exceeds max length")}
	}

	var existingTarget string
	var rlErr error
	if destFS.Family() == fsabs.POSIX {
		existingTarget, rlErr = destFS.Readlink(e.Path)
	} else {
		rlErr = fmt.Errorf("not a posix destination")
	}

	if rlErr == nil {
		if existingTarget == target {
			return UpToDate, nil
		}
		if err := destFS.Unlink(e.Path); err != nil {
			return UpToDate, &Error{Kind: ErrFS, Path: e.Path, Err: err}
		}
		if err := destFS.Symlink(target, e.Path); err != nil {
			return SymlinkSkipped, nil
		}
		return SymlinkUpdated, nil
	}

	if _, statErr := destFS.Stat(e.Path); statErr == nil {
		return UpToDate, &Error{Kind: ErrFS, Path: e.Path, Err: fmt.Errorf("refusing to replace a non-symlink destination with a symlink")}
	}
	if err := destFS.Symlink(target, e.Path); err != nil {
		return SymlinkSkipped, nil
	}
	return SymlinkCreated, nil
}

func (p *Pool) syncDir(srcFS, destFS fsabs.FileSystem, e fsabs.Entry) (Outcome, error) {
	_, statErr := destFS.Stat(e.Path)
	existed := statErr == nil
	if !existed {
		mode := uint32(0o755)
		if e.Meta != nil {
			mode = e.Meta.Mode
		}
		if err := destFS.Mkdir(e.Path, mode); err != nil {
			return UpToDate, &Error{Kind: ErrFS, Path: e.Path, Err: err}
		}
	}

	permOutcome, err := p.copyPermissions(srcFS, destFS, e.Path, e.Path)
	if err != nil {
		return UpToDate, err
	}

	switch {
	case !existed:
		return DirectoryCreated, nil
	case permOutcome == PermissionsUpdated:
		return DirectoryUpdated, nil
	default:
		return UpToDate, nil
	}
}

func (p *Pool) syncFile(srcFS, destFS fsabs.FileSystem, e fsabs.Entry) (Outcome, Hash128, Hash128, error) {
	if e.Meta == nil {
		return UpToDate, Hash128{}, Hash128{}, &Error{Kind: ErrFS, Path: e.Path, Err: fmt.Errorf("missing source metadata")}
	}

	dstStat, statErr := destFS.Stat(e.Path)
	destExists := statErr == nil

	var outcome Outcome
	var srcHash, dstHash Hash128

	if !destExists || fsabs.NeedsBulkCopy(*e.Meta, dstStat) {
		srcFile, err := srcFS.Open(e.Path)
		if err != nil {
			return UpToDate, Hash128{}, Hash128{}, &Error{Kind: ErrIO, Path: e.Path, Err: err}
		}
		defer srcFile.Close()

		dstFile, err := destFS.Create(e.Path, e.Meta.Mode)
		if err != nil {
			return UpToDate, Hash128{}, Hash128{}, &Error{Kind: ErrIO, Path: e.Path, Err: err}
		}
		defer dstFile.Close()

		digest, err := BulkCopy(srcFile, dstFile, func(n int64) {
			p.Progress <- ProgressMessage{Kind: CheckSyncing, Path: e.Path, FileDone: n, FileSize: e.Meta.Size}
		})
		if err != nil {
			return UpToDate, Hash128{}, Hash128{}, &Error{Kind: ErrIO, Path: e.Path, Err: err}
		}
		srcHash, dstHash = digest, digest // byte-identical by construction (I7)
		outcome = FileCopied
	} else {
		srcFile, err := srcFS.Open(e.Path)
		if err != nil {
			return UpToDate, Hash128{}, Hash128{}, &Error{Kind: ErrIO, Path: e.Path, Err: err}
		}
		defer srcFile.Close()

		dstFile, err := destFS.Open(e.Path)
		if err != nil {
			return UpToDate, Hash128{}, Hash128{}, &Error{Kind: ErrIO, Path: e.Path, Err: err}
		}
		defer dstFile.Close()

		counter, sHash, dHash, err := ChecksumRepair(srcFile, dstFile, func(n int64) {
			p.Progress <- ProgressMessage{Kind: CheckSyncing, Path: e.Path, FileDone: n, FileSize: e.Meta.Size}
		})
		if err != nil {
			return UpToDate, Hash128{}, Hash128{}, &Error{Kind: ErrIO, Path: e.Path, Err: err}
		}
		srcHash, dstHash = sHash, dHash
		if counter > 0 {
			outcome = ChecksumUpdated
		} else {
			outcome = UpToDate
		}
	}

	permOutcome, err := p.copyPermissions(srcFS, destFS, e.Path, e.Path)
	if err != nil {
		return outcome, srcHash, dstHash, err
	}
	// spec §4.5 step 4 / the original rsync worker's exact rule: a
	// permissions-only change only overrides the base outcome when the
	// base outcome was UpToDate. Any content change already dominates.
	if outcome == UpToDate && permOutcome == PermissionsUpdated {
		outcome = PermissionsUpdated
	}

	return outcome, srcHash, dstHash, nil
}

func (p *Pool) copyPermissions(srcFS, destFS fsabs.FileSystem, srcPath, dstPath string) (Outcome, error) {
	if destFS.Family() == fsabs.CIFS {
		return CopyPermissionsCIFS(p.SIDCache, p.Resolver, func(err error) {
			p.Progress <- ProgressMessage{Kind: SendError, Path: dstPath, Err: err}
		}, srcFS, destFS, srcPath, dstPath)
	}
	return CopyPermissionsPOSIX(srcFS, destFS, srcPath, dstPath)
}
