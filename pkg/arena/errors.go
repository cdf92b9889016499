package arena

import "errors"

var (
	// ErrAliasBroken means an owned slot of the engine options was replaced
	ErrAliasBroken = errors.New("arena: engine options no longer reference owned objects")

	// ErrConfigInUse is returned when a config already backs an open handle
	ErrConfigInUse = errors.New("arena: config already backs an open handle")

	// ErrReleased is returned when a released config is used again
	ErrReleased = errors.New("arena: config has been released")

	// ErrTooManyCodecs is returned by Build when more codecs are given than
	// the engine has slots for
	ErrTooManyCodecs = errors.New("arena: too many codecs")
)
