package engine

import "errors"

var (
	// ErrNoFrame is returned by Acquire for FlagMayFail callers when the
	// output device cannot provide a surface
	ErrNoFrame = errors.New("no frame available")
	// ErrNotAvailable is returned by Grab when there is nothing to copy
	ErrNotAvailable = errors.New("frame not available")
	// ErrStepTimeout is returned when the render loop did not honor a single step in time
	ErrStepTimeout = errors.New("single step timed out")

	ErrUnknownProperty     = errors.New("unknown property")
	ErrReadOnlyProperty    = errors.New("property is read-only")
	ErrUnsupportedProperty = errors.New("property not supported by output driver")

	// ErrClockFixed is returned when pausing a clock that cannot change speed
	ErrClockFixed = errors.New("clock speed cannot be changed")
	// ErrEngineStopped is returned once the engine has been closed
	ErrEngineStopped = errors.New("engine stopped")
)
