//go:build !linux

package workers

import "errors"

// IsRotational is only implemented on Linux; other platforms assume
// solid-state storage.
func IsRotational(string) (bool, error) {
	return false, errors.New("storage probing unsupported on this platform")
}
