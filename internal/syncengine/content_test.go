package syncengine

import (
	"bytes"
	"io"
	"testing"

	"github.com/4nonx/syncd/internal/fsabs"
)

// memFile is a minimal in-memory fsabs.File stand-in for exercising
// BulkCopy/ChecksumRepair without touching a real filesystem.
type memFile struct {
	buf []byte
}

func (m *memFile) Read(buf []byte, offset int64) (int, error) {
	if offset >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(buf, m.buf[offset:])
	return n, nil
}

func (m *memFile) Write(buf []byte, offset int64) (int, error) {
	end := offset + int64(len(buf))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[offset:end], buf)
	return len(buf), nil
}

func (m *memFile) Truncate(size int64) error {
	if size >= int64(len(m.buf)) {
		return nil
	}
	m.buf = m.buf[:size]
	return nil
}

func (m *memFile) Fstat() (fsabs.Stat, error) { return fsabs.Stat{Size: int64(len(m.buf))}, nil }

func (m *memFile) Close() error { return nil }

func TestBulkCopy_ExactMultipleOfBuffSize(t *testing.T) {
	src := &memFile{buf: bytes.Repeat([]byte{0xAB}, BuffSize*2)}
	dst := &memFile{}
	var emitted int64
	if _, err := BulkCopy(src, dst, func(n int64) { emitted += n }); err != nil {
		t.Fatalf("BulkCopy: %v", err)
	}
	if !bytes.Equal(src.buf, dst.buf) {
		t.Fatalf("dst does not match src after bulk copy")
	}
	if emitted != int64(len(src.buf)) {
		t.Fatalf("emitted %d bytes, want %d", emitted, len(src.buf))
	}
}

func TestBulkCopy_ZeroByteFile(t *testing.T) {
	src := &memFile{}
	dst := &memFile{}
	digest, err := BulkCopy(src, dst, nil)
	if err != nil {
		t.Fatalf("BulkCopy: %v", err)
	}
	want := NewFileDigest().Sum()
	if digest != want {
		t.Fatalf("digest of zero-byte copy should be the empty digest")
	}
}

func TestBulkCopy_ProducesByteIdenticalDigest(t *testing.T) {
	src := &memFile{buf: []byte("hello, rendezvous")}
	dst := &memFile{}
	digest, err := BulkCopy(src, dst, nil)
	if err != nil {
		t.Fatalf("BulkCopy: %v", err)
	}
	want := NewFileDigest()
	want.Write(src.buf)
	if digest != want.Sum() {
		t.Fatalf("digest mismatch")
	}
}

func TestChecksumRepair_NoopWhenIdentical(t *testing.T) {
	content := bytes.Repeat([]byte{0x42}, BuffSize+17)
	src := &memFile{buf: append([]byte(nil), content...)}
	dst := &memFile{buf: append([]byte(nil), content...)}

	counter, _, _, err := ChecksumRepair(src, dst, nil)
	if err != nil {
		t.Fatalf("ChecksumRepair: %v", err)
	}
	if counter != 0 {
		t.Fatalf("counter = %d, want 0 for identical files", counter)
	}
}

func TestChecksumRepair_RewritesMismatchedChunk(t *testing.T) {
	src := &memFile{buf: bytes.Repeat([]byte{0x01}, BuffSize+10)}
	dst := &memFile{buf: append([]byte(nil), src.buf...)}
	// Corrupt the second chunk only.
	dst.buf[BuffSize+2] = 0xFF

	counter, _, _, err := ChecksumRepair(src, dst, nil)
	if err != nil {
		t.Fatalf("ChecksumRepair: %v", err)
	}
	if counter != 1 {
		t.Fatalf("counter = %d, want 1", counter)
	}
	if !bytes.Equal(src.buf, dst.buf) {
		t.Fatalf("dst not repaired to match src")
	}
}

func TestChecksumRepair_TruncatesLongerDestinationTail(t *testing.T) {
	src := &memFile{buf: []byte("short")}
	dst := &memFile{buf: []byte("a much longer stale destination file")}

	counter, _, _, err := ChecksumRepair(src, dst, nil)
	if err != nil {
		t.Fatalf("ChecksumRepair: %v", err)
	}
	if counter != 1 {
		t.Fatalf("counter = %d, want 1", counter)
	}
	if !bytes.Equal(src.buf, dst.buf) {
		t.Fatalf("dst.buf = %q, want %q", dst.buf, src.buf)
	}
}
