//go:build linux

package workers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// IsRotational reports whether the block device backing path is a spinning
// disk, using the sysfs queue/rotational flag. Nonexistent paths are probed
// through their closest existing ancestor.
func IsRotational(path string) (bool, error) {
	existing, err := closestExisting(path)
	if err != nil {
		return false, err
	}
	var st unix.Stat_t
	if err := unix.Stat(existing, &st); err != nil {
		return false, fmt.Errorf("stat %s: %w", existing, err)
	}
	dev := uint64(st.Dev)
	devDir := fmt.Sprintf("/sys/dev/block/%d:%d", unix.Major(dev), unix.Minor(dev))
	resolved, err := filepath.EvalSymlinks(devDir)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", devDir, err)
	}
	// Partitions have no queue directory of their own; the parent disk does.
	for _, dir := range []string{resolved, filepath.Dir(resolved)} {
		data, err := os.ReadFile(filepath.Join(dir, "queue", "rotational"))
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(data)) == "1", nil
	}
	return false, errors.New("no rotational flag for device " + devDir)
}

func closestExisting(path string) (string, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(current); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		current = parent
	}
}
