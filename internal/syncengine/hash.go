// Package syncengine implements the parallel synchronizer: the walker,
// rsync worker pool, file-content algorithms, and permission/ACL copy
// described in spec §4.4–§4.7.
package syncengine

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Hash128 is a 128-bit digest. xxhash is natively 64-bit; spec §4.6.b
// requires a fast non-cryptographic mixer with >=128-bit output, so
// this combines two xxhash passes, the second seeded from the first
// pass's output, rather than
// reaching for a cryptographic hash — collisions on genuinely
// different chunk data are the only correctness risk, and 128 bits of
// a well-mixed non-crypto hash is ample for this workload.
type Hash128 [16]byte

// secondSeedPrefix is XORed into the buffer's effective seed for the
// second pass so the two halves are not trivially related.
var secondSeedPrefix uint64 = 0x9E3779B97F4A7C15

// FastHash computes a 128-bit digest of buf.
func FastHash(buf []byte) Hash128 {
	h1 := xxhash.Sum64(buf)

	d2 := xxhash.New()
	var seedBuf [8]byte
	binary.LittleEndian.PutUint64(seedBuf[:], h1^secondSeedPrefix)
	d2.Write(seedBuf[:])
	d2.Write(buf)
	h2 := d2.Sum64()

	var out Hash128
	binary.LittleEndian.PutUint64(out[0:8], h1)
	binary.LittleEndian.PutUint64(out[8:16], h2)
	return out
}

func (h Hash128) Equal(o Hash128) bool { return h == o }

// String renders the digest as hex, the shape persisted in audit
// records (spec §6 File record: src_hash, dst_hash).
func (h Hash128) String() string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 32)
	for i, b := range h {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0xf]
	}
	return string(out)
}

// fileDigestSeed seeds the second of FileDigest's two streams. Unlike
// FastHash's second pass, a streaming whole-file digest cannot seed off
// its own first-pass output without buffering the whole file, so the
// two streams here are independently seeded instead.
var fileDigestSeed = [8]byte{0x51, 0x7c, 0xc1, 0xb7, 0x27, 0x22, 0x0a, 0x94}

// FileDigest is a streaming whole-file counterpart to FastHash, used to
// compute the src_hash/dst_hash audit fields while a file streams
// through BulkCopy or ChecksumRepair without buffering it. It is purely
// informational: checksum comparisons during repair use per-chunk
// FastHash, never FileDigest.
type FileDigest struct {
	d1, d2 *xxhash.Digest
}

// NewFileDigest starts a new streaming digest.
func NewFileDigest() *FileDigest {
	d2 := xxhash.New()
	d2.Write(fileDigestSeed[:])
	return &FileDigest{d1: xxhash.New(), d2: d2}
}

// Write feeds the next chunk of file content into the digest, in order.
func (f *FileDigest) Write(chunk []byte) {
	f.d1.Write(chunk)
	f.d2.Write(chunk)
}

// Sum finalizes the digest. Calling Write afterward produces an
// undefined result; callers must call Sum exactly once per file.
func (f *FileDigest) Sum() Hash128 {
	var out Hash128
	binary.LittleEndian.PutUint64(out[0:8], f.d1.Sum64())
	binary.LittleEndian.PutUint64(out[8:16], f.d2.Sum64())
	return out
}
