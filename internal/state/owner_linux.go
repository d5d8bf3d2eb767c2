//go:build linux

package state

import (
	"fmt"
	"os"
	"syscall"
)

// ownerUID extracts the owning UID from a os.FileInfo backed by a Linux
// syscall.Stat_t.
func ownerUID(info os.FileInfo) (uint32, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("unsupported stat type %T", info.Sys())
	}
	return stat.Uid, nil
}
