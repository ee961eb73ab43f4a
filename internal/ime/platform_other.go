//go:build !linux

package ime

import "errors"

var errUnsupported = errors.New("ime: no supported input method framework on this platform")

// OtherPlatform is used where IBus is unavailable.
type OtherPlatform struct{}

// NewPlatform returns the platform integration for this OS.
func NewPlatform(PlatformConfig) Platform {
	return OtherPlatform{}
}

func (OtherPlatform) Name() string      { return "unsupported" }
func (OtherPlatform) Available() bool   { return false }
func (OtherPlatform) Install() error    { return errUnsupported }
func (OtherPlatform) Uninstall() error  { return errUnsupported }
func (OtherPlatform) IsInstalled() bool { return false }
func (OtherPlatform) IsActive() bool    { return false }
func (OtherPlatform) Activate() error   { return errUnsupported }

var _ Platform = OtherPlatform{}
