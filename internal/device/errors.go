package device

import "errors"

// Sentinel error kinds the controller surfaces to callers. Parse
// errors from pattern.Tokenize are returned unwrapped from Set and
// Replace; these cover the remaining failure modes described in the
// spec's error-handling design.
var (
	// ErrUnknownPattern is returned by Replace when given a pid that
	// does not (or no longer) identify a live pattern.
	ErrUnknownPattern = errors.New("device: unknown pattern id")
	// ErrLampDisabled is returned when a logical lamp index maps to no
	// physical channel, or is out of range.
	ErrLampDisabled = errors.New("device: lamp is disabled or out of range")
	// ErrInvalidIDMap is returned by SetIDMap when an entry is outside
	// {-1, 0..7}. The id map is restored to identity before returning.
	ErrInvalidIDMap = errors.New("device: id map entry out of range")
	// ErrInvalidGamut is returned by SetGamut when the resulting matrix
	// fails the no-amplification invariant. The gamut is restored to
	// identity before returning.
	ErrInvalidGamut = errors.New("device: gamut matrix row sums exceed 1.0")
)
