//go:build !linux && !darwin

package camera

import "errors"

var errUnsupported = errors.New("not supported on this platform")

func freeSpace(string) (uint64, error) { return 0, errUnsupported }

func isMount(string) (bool, error) { return false, errUnsupported }
