package osfs

import (
	"encoding/json"
	"fmt"

	"github.com/4nonx/syncd/internal/fsabs"
)

// The CIFS family here is emulated rather than backed by a real Samba
// server: ACLs and the DOS-mode byte are round-tripped through a JSON
// blob and a single byte stored as extended attributes (SPEC_FULL §6).
// This exercises every branch of the permission-copy procedure in
// spec §4.7 — named/numeric ACE separation, the synthetic-ACE name
// translation trick, and extra-ACE cleanup — without requiring a real
// CIFS endpoint.

func (fs *FS) readACL(path string) ([]fsabs.ACE, error) {
	raw, err := fs.getxattr(path, xattrACL)
	if err != nil {
		return nil, nil // no ACL set yet; treat as empty
	}
	var aces []fsabs.ACE
	if err := json.Unmarshal(raw, &aces); err != nil {
		return nil, fmt.Errorf("osfs: corrupt ACL blob at %s: %w", path, err)
	}
	return aces, nil
}

func (fs *FS) writeACL(path string, aces []fsabs.ACE) error {
	raw, err := json.Marshal(aces)
	if err != nil {
		return err
	}
	return fs.setxattr(path, xattrACL, raw)
}

// GetNamedACL and GetNumericACL both read the same underlying ACL list
// and must stay index-aligned with each other (spec §4.7 step 1 pairs
// them by position): they differ only in which field of each ACE the
// caller is meant to read, never in length or order. An entry with no
// resolved human name simply carries an empty Name here.
func (fs *FS) GetNamedACL(path string) ([]fsabs.ACE, error) {
	return fs.readACL(path)
}

// GetNumericACL returns every entry with the SID it was stored with,
// named or not. This stand-in assigns no SIDs of its own: an entry
// stored by name only carries an empty SID.
func (fs *FS) GetNumericACL(path string) ([]fsabs.ACE, error) {
	return fs.readACL(path)
}

// SetACL replaces the whole stored ACL, used both for the real target
// state and for the synthetic temporary ALLOW-FULL ACE used during
// name translation (spec §4.7 step 3).
func (fs *FS) SetACL(path string, aces []fsabs.ACE) error {
	return fs.writeACL(path, aces)
}

func (fs *FS) GetDOSMode(path string) (byte, error) {
	raw, err := fs.getxattr(path, xattrDOSMode)
	if err != nil || len(raw) == 0 {
		return 0, nil
	}
	return raw[0], nil
}

func (fs *FS) SetDOSMode(path string, mode byte) error {
	return fs.setxattr(path, xattrDOSMode, []byte{mode})
}
