//go:build !darwin && !linux

package storage

import "errors"

func fsType(string) (string, error) {
	return "", errors.New("filesystem detection unsupported on this platform")
}
