// Package osfs is the in-tree local-disk stand-in for the abstract
// fsabs.FileSystem, used by tests and local single-host runs to drive
// every branch of the sync engine without a real NFS/Samba server
// (SPEC_FULL §6).
package osfs

import (
	"os"

	"github.com/4nonx/syncd/internal/fsabs"
)

type file struct {
	f *os.File
}

func (h *file) Read(buf []byte, offset int64) (int, error) {
	n, err := h.f.ReadAt(buf, offset)
	if n > 0 {
		return n, nil
	}
	return n, err
}

func (h *file) Write(buf []byte, offset int64) (int, error) {
	return h.f.WriteAt(buf, offset)
}

func (h *file) Fstat() (fsabs.Stat, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return fsabs.Stat{}, err
	}
	return toStat(fi), nil
}

func (h *file) Truncate(size int64) error { return h.f.Truncate(size) }

func (h *file) Close() error { return h.f.Close() }
