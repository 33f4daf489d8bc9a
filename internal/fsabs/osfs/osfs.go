package osfs

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/4nonx/syncd/internal/fsabs"
	"golang.org/x/sys/unix"
)

// FS is a local-disk backed fsabs.FileSystem. In POSIX mode it behaves
// like a real POSIX filesystem client (symlinks, mode bits). In CIFS
// mode, ACL and DOS-mode operations are emulated via extended
// attributes (golang.org/x/sys/unix.Lsetxattr/Lgetxattr) so the
// permission-copy logic in spec §4.7 can be exercised end to end
// without a real Samba server.
type FS struct {
	root   string
	family fsabs.Family
}

// New returns an FS rooted at root, in the given family mode.
func New(root string, family fsabs.Family) *FS {
	return &FS{root: root, family: family}
}

func (fs *FS) Family() fsabs.Family { return fs.family }

func (fs *FS) abs(path string) string { return filepath.Join(fs.root, path) }

func (fs *FS) Create(path string, mode uint32) (fsabs.File, error) {
	f, err := os.OpenFile(fs.abs(path), os.O_RDWR|os.O_CREATE|os.O_TRUNC, os.FileMode(mode))
	if err != nil {
		return nil, fmt.Errorf("osfs: create %s: %w", path, err)
	}
	return &file{f: f}, nil
}

func (fs *FS) Open(path string) (fsabs.File, error) {
	f, err := os.OpenFile(fs.abs(path), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("osfs: open %s: %w", path, err)
	}
	return &file{f: f}, nil
}

func (fs *FS) Opendir(path string) ([]fsabs.DirEntry, error) {
	entries, err := os.ReadDir(fs.abs(path))
	if err != nil {
		return nil, fmt.Errorf("osfs: opendir %s: %w", path, err)
	}
	out := make([]fsabs.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		isLnk := err == nil && info.Mode()&os.ModeSymlink != 0
		out = append(out, fsabs.DirEntry{Name: e.Name(), IsDir: e.IsDir(), IsLnk: isLnk})
	}
	return out, nil
}

func (fs *FS) Stat(path string) (fsabs.Stat, error) {
	fi, err := os.Lstat(fs.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return fsabs.Stat{}, fsabs.ErrNotExist
		}
		return fsabs.Stat{}, fmt.Errorf("osfs: stat %s: %w", path, err)
	}
	return toStat(fi), nil
}

func toStat(fi os.FileInfo) fsabs.Stat {
	st := fsabs.Stat{
		Mode:  uint32(fi.Mode().Perm()),
		Size:  fi.Size(),
		Mtime: fi.ModTime(),
	}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		st.Dev = uint64(sys.Dev)
		st.Ino = sys.Ino
		st.Nlink = uint32(sys.Nlink)
		st.UID = sys.Uid
		st.GID = sys.Gid
		st.Rdev = uint64(sys.Rdev)
		st.Blksize = int64(sys.Blksize)
		st.Blocks = sys.Blocks
		st.Atime = time.Unix(sys.Atim.Sec, sys.Atim.Nsec)
		st.Ctime = time.Unix(sys.Ctim.Sec, sys.Ctim.Nsec)
	}
	return st
}

func (fs *FS) Mkdir(path string, mode uint32) error {
	if err := os.Mkdir(fs.abs(path), os.FileMode(mode)); err != nil && !os.IsExist(err) {
		return fmt.Errorf("osfs: mkdir %s: %w", path, err)
	}
	return nil
}

func (fs *FS) Rmdir(path string) error {
	if err := os.Remove(fs.abs(path)); err != nil {
		return fmt.Errorf("osfs: rmdir %s: %w", path, err)
	}
	return nil
}

func (fs *FS) Rename(oldPath, newPath string) error {
	return os.Rename(fs.abs(oldPath), fs.abs(newPath))
}

func (fs *FS) Unlink(path string) error {
	if err := os.Remove(fs.abs(path)); err != nil {
		return fmt.Errorf("osfs: unlink %s: %w", path, err)
	}
	return nil
}

func (fs *FS) Chmod(path string, mode uint32) error {
	return os.Chmod(fs.abs(path), os.FileMode(mode))
}

// Readlink is POSIX-family only; the CIFS family has no symlink
// concept and returns an error (spec §4.5).
func (fs *FS) Readlink(path string) (string, error) {
	if fs.family != fsabs.POSIX {
		return "", fmt.Errorf("osfs: readlink unsupported on CIFS family")
	}
	buf := make([]byte, 4096)
	n, err := unix.Readlink(fs.abs(path), buf)
	if err != nil {
		return "", fmt.Errorf("osfs: readlink %s: %w", path, err)
	}
	return string(buf[:n]), nil
}

func (fs *FS) Symlink(target, path string) error {
	if fs.family != fsabs.POSIX {
		return fmt.Errorf("osfs: symlink unsupported on CIFS family")
	}
	return os.Symlink(target, fs.abs(path))
}

const (
	xattrACL     = "user.syncd.acl"
	xattrDOSMode = "user.syncd.dosmode"
)

func (fs *FS) getxattr(path, name string) ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := unix.Lgetxattr(fs.abs(path), name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (fs *FS) setxattr(path, name string, value []byte) error {
	return unix.Lsetxattr(fs.abs(path), name, value, 0)
}
