//go:build linux || darwin

package camera

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func freeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

// isMount reports whether path sits on a different device than its parent.
func isMount(path string) (bool, error) {
	path = filepath.Clean(path)
	var self, parent unix.Stat_t
	if err := unix.Stat(path, &self); err != nil {
		return false, err
	}
	if err := unix.Stat(filepath.Dir(path), &parent); err != nil {
		return false, err
	}
	return self.Dev != parent.Dev || self.Ino == parent.Ino, nil
}
