package syncengine

import (
	"fmt"
	"sync"

	"github.com/4nonx/syncd/internal/fsabs"
)

// creatorSIDs are the two synthetic inheritance-template SIDs that are
// never removed during the destination extra-ACL cleanup and never
// copied as static ACEs themselves (spec §4.7 step 4 / §9).
var creatorSIDs = map[string]bool{"3-0": true, "3-1": true}

// SIDCache is the process-wide name->numeric-SID map of spec §4.7 step
// 2: lazily populated, pre-seeded with the three well-known SIDs the
// synthetic-ACE trick never needs to resolve. Guarded by its own mutex,
// never held across a channel send (spec §5's no-deadlock invariant).
type SIDCache struct {
	mu sync.Mutex
	m  map[string]string
}

func NewSIDCache() *SIDCache {
	return &SIDCache{m: map[string]string{
		`\Everyone`:      "1-0",
		`\Creator Owner`: "3-0",
		`\Creator Group`: "3-1",
	}}
}

func (c *SIDCache) Get(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sid, ok := c.m[name]
	return sid, ok
}

func (c *SIDCache) Put(name, sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[name] = sid
}

// NameResolver is the directory-backed fallback of SPEC_FULL §4.7 step
// 3 addendum: consulted when the synthetic-ACE name-translation trick
// can't resolve a named ACE and an LDAP URL is configured.
type NameResolver interface {
	Resolve(name string) (sid string, err error)
}

func copyACEs(in []fsabs.ACE) []fsabs.ACE {
	out := make([]fsabs.ACE, len(in))
	copy(out, in)
	return out
}

func errFirst(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

// mapName implements spec §4.7 step 3: apply a synthetic full-control
// ACE for name to the destination, re-read its named and numeric ACLs,
// find the entry that appeared which wasn't there before, and read its
// numeric SID off the parallel numeric list at the same index — then
// restore the destination's original ACL. Falls back to resolver, if
// set, when the synthetic trick doesn't turn up the name.
func mapName(cache *SIDCache, resolver NameResolver, fs fsabs.FileSystem, path, name string) (string, error) {
	if sid, ok := cache.Get(name); ok {
		return sid, nil
	}

	before, err := fs.GetNamedACL(path)
	if err != nil {
		return "", &Error{Kind: ErrXAttrParse, Path: path, Err: err}
	}

	synthetic := fsabs.ACE{Name: name, Type: 0, Flags: 0, Mask: 0x1F01FF}
	if err := fs.SetACL(path, append(copyACEs(before), synthetic)); err != nil {
		return "", &Error{Kind: ErrXAttrParse, Path: path, Err: err}
	}

	afterNamed, namedErr := fs.GetNamedACL(path)
	afterNumeric, numErr := fs.GetNumericACL(path)
	_ = fs.SetACL(path, before) // restore regardless of lookup outcome below

	if namedErr != nil || numErr != nil {
		return "", &Error{Kind: ErrXAttrParse, Path: path, Err: errFirst(namedErr, numErr)}
	}

	sid, found := findAppeared(before, afterNamed, afterNumeric, name)
	if !found {
		if resolver != nil {
			if resolved, rerr := resolver.Resolve(name); rerr == nil {
				cache.Put(name, resolved)
				return resolved, nil
			}
		}
		return "", &Error{Kind: ErrCredentialMap, Path: path, Err: fmt.Errorf("could not resolve named ACE %q", name)}
	}
	cache.Put(name, sid)
	return sid, nil
}

// findAppeared locates the occurrence of name in afterNamed that wasn't
// already present in before (the synthetic ACE just added), and returns
// its numeric SID from the index-aligned afterNumeric list.
func findAppeared(before, afterNamed, afterNumeric []fsabs.ACE, name string) (string, bool) {
	beforeCount := 0
	for _, a := range before {
		if a.Name == name {
			beforeCount++
		}
	}
	seen := 0
	for i, a := range afterNamed {
		if a.Name != name {
			continue
		}
		seen++
		if seen <= beforeCount {
			continue
		}
		if i < len(afterNumeric) {
			return afterNumeric[i].SID, true
		}
	}
	return "", false
}

func replaceACE(list []fsabs.ACE, sid string, want fsabs.ACE) []fsabs.ACE {
	out := make([]fsabs.ACE, 0, len(list))
	replaced := false
	for _, a := range list {
		if a.SID == sid {
			out = append(out, want)
			replaced = true
			continue
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, want)
	}
	return out
}

// CopyPermissionsPOSIX implements the POSIX branch of spec §4.7: a
// plain mode-bit compare and chmod.
func CopyPermissionsPOSIX(srcFS, destFS fsabs.FileSystem, srcPath, dstPath string) (Outcome, error) {
	srcStat, err := srcFS.Stat(srcPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrFS, Path: srcPath, Err: err}
	}
	dstStat, err := destFS.Stat(dstPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrFS, Path: dstPath, Err: err}
	}
	if srcStat.Mode == dstStat.Mode {
		return UpToDate, nil
	}
	if err := destFS.Chmod(dstPath, srcStat.Mode); err != nil {
		return UpToDate, &Error{Kind: ErrFS, Path: dstPath, Err: err}
	}
	return PermissionsUpdated, nil
}

// CopyPermissionsCIFS implements spec §4.7's CIFS branch in full: ACE
// pairing by index between the named and numeric source ACLs, skipping
// "\Creator Owner" and everything listed after it, the synthetic-ACE
// name-translation step (with LDAP fallback), per-ACE compare/replace/
// add, the destination extra-ACL cleanup, and the DOS-mode and
// stat-mode copies. onACEError, if non-nil, receives a soft warning for
// any single ACE that couldn't be mapped — it does not abort the rest
// of the copy.
func CopyPermissionsCIFS(cache *SIDCache, resolver NameResolver, onACEError func(error), srcFS, destFS fsabs.FileSystem, srcPath, dstPath string) (Outcome, error) {
	srcNumeric, err := srcFS.GetNumericACL(srcPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrXAttrParse, Path: srcPath, Err: err}
	}
	srcNamed, err := srcFS.GetNamedACL(srcPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrXAttrParse, Path: srcPath, Err: err}
	}
	dstNumeric, err := destFS.GetNumericACL(dstPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrXAttrParse, Path: dstPath, Err: err}
	}

	changed := false
	mappedSIDs := make(map[string]bool)
	dstBySID := make(map[string]fsabs.ACE, len(dstNumeric))
	for _, a := range dstNumeric {
		dstBySID[a.SID] = a
	}

	creatorReached := false
	n := len(srcNamed)
	if len(srcNumeric) < n {
		n = len(srcNumeric)
	}
	for i := 0; i < n; i++ {
		named := srcNamed[i]
		numeric := srcNumeric[i]
		if named.Name == `\Creator Owner` {
			creatorReached = true
		}
		if creatorReached {
			continue // inheritance templates: never copied as static ACEs (step 4)
		}

		var sid string
		if named.Name == "" {
			// Already a bare numeric ACE: nothing to translate.
			sid = numeric.SID
		} else {
			var merr error
			sid, merr = mapName(cache, resolver, destFS, dstPath, named.Name)
			if merr != nil {
				if onACEError != nil {
					onACEError(merr)
				}
				continue
			}
		}
		mappedSIDs[sid] = true

		want := fsabs.ACE{SID: sid, Type: numeric.Type, Flags: numeric.Flags, Mask: numeric.Mask}
		if existing, ok := dstBySID[sid]; ok {
			if existing.Type != want.Type || existing.Flags != want.Flags || existing.Mask != want.Mask {
				dstNumeric = replaceACE(dstNumeric, sid, want)
				if err := destFS.SetACL(dstPath, dstNumeric); err != nil {
					return UpToDate, &Error{Kind: ErrXAttrParse, Path: dstPath, Err: err}
				}
				dstBySID[sid] = want
				changed = true
			}
		} else {
			dstNumeric = append(dstNumeric, want)
			dstBySID[sid] = want
			if err := destFS.SetACL(dstPath, dstNumeric); err != nil {
				return UpToDate, &Error{Kind: ErrXAttrParse, Path: dstPath, Err: err}
			}
			changed = true
		}
	}

	// Extra-ACL cleanup (spec §4.7 final paragraph): any destination ACE
	// that is neither an inherited creator SID nor a SID copied above is
	// removed.
	var extras, kept []fsabs.ACE
	for _, a := range dstNumeric {
		if creatorSIDs[a.SID] || mappedSIDs[a.SID] {
			kept = append(kept, a)
			continue
		}
		extras = append(extras, a)
	}
	if len(extras) > 0 {
		if err := destFS.SetACL(dstPath, kept); err != nil {
			return UpToDate, &Error{Kind: ErrXAttrParse, Path: dstPath, Err: err}
		}
		// Removing at least one extra ACE counts as a change; this is
		// the only way the cleanup step feeds into changed (see
		// DESIGN.md).
		changed = true
	}

	srcMode, err := srcFS.GetDOSMode(srcPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrXAttrParse, Path: srcPath, Err: err}
	}
	dstMode, err := destFS.GetDOSMode(dstPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrXAttrParse, Path: dstPath, Err: err}
	}
	if srcMode != dstMode {
		if err := destFS.SetDOSMode(dstPath, srcMode); err != nil {
			return UpToDate, &Error{Kind: ErrXAttrParse, Path: dstPath, Err: err}
		}
		changed = true
	}

	srcStat, err := srcFS.Stat(srcPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrFS, Path: srcPath, Err: err}
	}
	dstStat, err := destFS.Stat(dstPath)
	if err != nil {
		return UpToDate, &Error{Kind: ErrFS, Path: dstPath, Err: err}
	}
	if srcStat.Mode != dstStat.Mode {
		if err := destFS.Chmod(dstPath, srcStat.Mode); err != nil {
			return UpToDate, &Error{Kind: ErrFS, Path: dstPath, Err: err}
		}
		changed = true
	}

	if changed {
		return PermissionsUpdated, nil
	}
	return UpToDate, nil
}
