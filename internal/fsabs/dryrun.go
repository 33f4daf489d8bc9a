package fsabs

// ReadOnly wraps a FileSystem so every mutating call becomes a no-op,
// while every read call (Stat, Opendir, Readlink, GetNamedACL, ...)
// still hits the real destination — used by `-dry-run` to let the
// walker and rsync pool compute and report the same outcomes a real
// run would produce without writing anything.
type ReadOnly struct {
	Inner FileSystem
}

func NewReadOnly(inner FileSystem) *ReadOnly { return &ReadOnly{Inner: inner} }

func (r *ReadOnly) Family() Family { return r.Inner.Family() }

func (r *ReadOnly) Create(path string, mode uint32) (File, error) {
	return &noopFile{}, nil
}

func (r *ReadOnly) Open(path string) (File, error) {
	f, err := r.Inner.Open(path)
	if err != nil {
		return nil, err
	}
	return readOnlyFile{f}, nil
}

// readOnlyFile backs ReadOnly.Open: reads go to the real file, while
// writes are reported as fully consumed and truncation does nothing.
type readOnlyFile struct{ File }

func (readOnlyFile) Write(buf []byte, offset int64) (int, error) { return len(buf), nil }
func (readOnlyFile) Truncate(size int64) error                   { return nil }

func (r *ReadOnly) Opendir(path string) ([]DirEntry, error) { return r.Inner.Opendir(path) }

func (r *ReadOnly) Stat(path string) (Stat, error) { return r.Inner.Stat(path) }

func (r *ReadOnly) Mkdir(path string, mode uint32) error { return nil }

func (r *ReadOnly) Rmdir(path string) error { return nil }

func (r *ReadOnly) Rename(oldPath, newPath string) error { return nil }

func (r *ReadOnly) Unlink(path string) error { return nil }

func (r *ReadOnly) Chmod(path string, mode uint32) error { return nil }

func (r *ReadOnly) Readlink(path string) (string, error) { return r.Inner.Readlink(path) }

func (r *ReadOnly) Symlink(target, path string) error { return nil }

func (r *ReadOnly) GetNamedACL(path string) ([]ACE, error) { return r.Inner.GetNamedACL(path) }

func (r *ReadOnly) GetNumericACL(path string) ([]ACE, error) { return r.Inner.GetNumericACL(path) }

func (r *ReadOnly) SetACL(path string, aces []ACE) error { return nil }

func (r *ReadOnly) GetDOSMode(path string) (byte, error) { return r.Inner.GetDOSMode(path) }

func (r *ReadOnly) SetDOSMode(path string, mode byte) error { return nil }

// noopFile backs ReadOnly.Create: reports every write as fully
// consumed (so callers' short-write retry loops terminate) without
// touching any real storage.
type noopFile struct{}

func (noopFile) Read(buf []byte, offset int64) (int, error) { return 0, nil }
func (noopFile) Write(buf []byte, offset int64) (int, error) { return len(buf), nil }
func (noopFile) Fstat() (Stat, error)                        { return Stat{}, nil }
func (noopFile) Truncate(size int64) error                   { return nil }
func (noopFile) Close() error                                { return nil }
