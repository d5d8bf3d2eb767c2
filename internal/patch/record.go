// Package patch models the patch records loaded from patches.toml: which
// target file each one applies to, how its content combines with the
// target's original bytes, and the stable identifiers the FUSE layer and
// the publisher use to refer to it.
package patch

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
)

// Mode is the way a patch's content combines with the target file's
// original bytes.
type Mode int

const (
	// Prepend places the patch content before the target's bytes.
	Prepend Mode = iota
	// Append places the patch content after the target's bytes.
	Append
	// Replace serves only the patch content; the target's bytes are hidden
	// entirely from readers.
	Replace
)

func (m Mode) String() string {
	switch m {
	case Prepend:
		return "prepend"
	case Append:
		return "append"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// Record is one parsed entry from patches.toml: a target path, the mode it
// combines under, and the literal bytes to splice in.
type Record struct {
	Mode    Mode
	Path    string
	Content []byte
}

// Hash returns the stable MD5 hex digest of the record's target path. It is
// used both as the synthetic filesystem entry's name prefix and, by the
// publisher, to pair a mount-point entry back to the Record it came from.
func (r Record) Hash() string {
	return HashPath(r.Path)
}

// HashPath returns the stable MD5 hex digest of a target path.
func HashPath(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// EntryName is the name the synthetic filesystem lists this record under:
// "<hash>:<basename>", so the publisher can recover the hash by splitting
// on the first colon without needing to stat anything.
func (r Record) EntryName() string {
	return r.Hash() + ":" + filepath.Base(r.Path)
}

// EntryHash recovers the hash prefix from a synthetic filesystem entry name
// produced by EntryName.
func EntryHash(entryName string) string {
	for i := 0; i < len(entryName); i++ {
		if entryName[i] == ':' {
			return entryName[:i]
		}
	}
	return entryName
}
