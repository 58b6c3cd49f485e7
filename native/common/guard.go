package common

import "errors"

// ErrModulePaused is returned by Guard when operations on a module have been
// administratively halted.
var ErrModulePaused = errors.New("common: module paused")

// PauseView reports whether a named module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects operations on paused modules. A nil view or empty module name
// leaves every operation enabled.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
