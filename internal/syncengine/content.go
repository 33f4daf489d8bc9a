package syncengine

import (
	"errors"
	"io"

	"github.com/4nonx/syncd/internal/fsabs"
)

// BuffSize is the chunk size used by both bulk copy and checksum repair
// (spec §4.6): 1,024,000 bytes.
const BuffSize = 1_024_000

func readChunk(f fsabs.File, buf []byte, offset int64) (int, error) {
	n, err := f.Read(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}

// BulkCopy implements spec §4.6.a: sequential chunked copy from src to
// dst. The write offset advances by bytes actually written, not bytes
// read, so a short destination write causes the next iteration to
// re-read (rather than drop) its unwritten tail. emit, if non-nil, is
// called once per chunk with the number of bytes written, for progress
// reporting. Returns a whole-file digest of the bytes read from src.
func BulkCopy(src, dst fsabs.File, emit func(done int64)) (Hash128, error) {
	digest := NewFileDigest()
	buf := make([]byte, BuffSize)
	var offset int64
	for {
		n, err := readChunk(src, buf, offset)
		if err != nil {
			return Hash128{}, err
		}
		if n == 0 {
			break
		}

		written, err := dst.Write(buf[:n], offset)
		if err != nil {
			return Hash128{}, err
		}
		digest.Write(buf[:written])
		if emit != nil {
			emit(int64(written))
		}
		if written == 0 {
			break
		}
		offset += int64(written)
	}
	return digest.Sum(), nil
}

// ChecksumRepair implements spec §4.6.b: walks src and dst in lockstep,
// comparing each chunk's FastHash and rewriting only the chunks that
// differ. A short source tail chunk truncates the destination before
// the rewrite so a previously-longer destination file converges to the
// source's exact length. Returns the number of chunks rewritten and a
// whole-file digest of each side as actually read (informational, for
// the audit record — not used for the chunk comparison itself).
func ChecksumRepair(src, dst fsabs.File, emit func(done int64)) (counter int, srcDigest, dstDigest Hash128, err error) {
	sAcc, dAcc := NewFileDigest(), NewFileDigest()
	srcBuf := make([]byte, BuffSize)
	dstBuf := make([]byte, BuffSize)
	var offset int64
	for {
		sn, rerr := readChunk(src, srcBuf, offset)
		if rerr != nil {
			return counter, Hash128{}, Hash128{}, rerr
		}
		dn, rerr := readChunk(dst, dstBuf, offset)
		if rerr != nil {
			return counter, Hash128{}, Hash128{}, rerr
		}

		sAcc.Write(srcBuf[:sn])
		dAcc.Write(dstBuf[:dn])

		if sn == 0 {
			break
		}

		if FastHash(srcBuf[:sn]) != FastHash(dstBuf[:dn]) {
			if sn < dn {
				if terr := dst.Truncate(offset + int64(sn)); terr != nil {
					return counter, Hash128{}, Hash128{}, terr
				}
			}
			if _, werr := dst.Write(srcBuf[:sn], offset); werr != nil {
				return counter, Hash128{}, Hash128{}, werr
			}
			counter++
		}
		if emit != nil {
			emit(int64(sn))
		}
		offset += int64(sn)
	}
	return counter, sAcc.Sum(), dAcc.Sum(), nil
}
