// Package fsabs defines the abstract remote-filesystem capability the
// sync engine is written against (spec §6). Concrete POSIX-style and
// CIFS-style client libraries are out of scope external collaborators;
// this package only declares the interface and ships one in-tree
// local-disk stand-in (package osfs) used for tests and local runs.
package fsabs

import (
	"errors"
	"time"
)

// Family distinguishes the two remote-protocol variants the permission
// and symlink logic dispatches on (spec §4.7).
type Family int

const (
	POSIX Family = iota
	CIFS
)

// Stat mirrors the POSIX stat(2) fields the sync engine compares
// (spec §6).
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// DirEntry is one listing result from Opendir.
type DirEntry struct {
	Name  string
	IsDir bool
	IsLnk bool
}

// ACE models both CIFS ACL representations from spec §4.7: an entry
// identified by a human name (Name), or by a resolved numeric SID (SID).
type ACE struct {
	SID   string // numeric form, e.g. "S-1-1-0" style or this project's compact "major.minor" pair string
	Name  string // human name, empty for a purely numeric entry
	Type  int    // ALLOW / DENY
	Flags int
	Mask  uint32
}

// File is an open handle returned by Create/Open. Writes may be short;
// callers must loop (spec §6).
type File interface {
	Read(buf []byte, offset int64) (int, error)
	Write(buf []byte, offset int64) (int, error)
	Fstat() (Stat, error)
	Truncate(size int64) error
	Close() error
}

// FileSystem is the abstract capability consumed from an external
// collaborator client library (spec §6). Every method may return an
// error wrapping one of the kinds in spec §7.
type FileSystem interface {
	Family() Family

	Create(path string, mode uint32) (File, error)
	Open(path string) (File, error)
	Opendir(path string) ([]DirEntry, error)
	Stat(path string) (Stat, error)
	Mkdir(path string, mode uint32) error
	Rmdir(path string) error
	Rename(oldPath, newPath string) error
	Unlink(path string) error
	Chmod(path string, mode uint32) error

	// POSIX-style only.
	Readlink(path string) (string, error)
	Symlink(target, path string) error

	// CIFS-style only.
	GetNamedACL(path string) ([]ACE, error)
	GetNumericACL(path string) ([]ACE, error)
	SetACL(path string, aces []ACE) error
	GetDOSMode(path string) (byte, error)
	SetDOSMode(path string, mode byte) error
}

// ErrNotExist is returned by Stat when the remote entry does not
// exist — used to distinguish missing-source (error) from
// missing-destination (triggers creation), per spec §3 Entry.
var ErrNotExist = errors.New("fsabs: path does not exist")
