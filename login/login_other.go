//go:build !linux && !darwin

package login

import "errors"

var errUnsupported = errors.New("start-at-login is not supported on this platform")

func Enabled() bool           { return false }
func Enable(_ []string) error { return errUnsupported }
func Disable() error          { return errUnsupported }
