package sealed

import "errors"

var (
	// ErrAbsent is returned when no sealed data exists for a blob name.
	ErrAbsent = errors.New("sealed blob absent")

	// ErrKeyMismatch is returned when a blob cannot be opened with the
	// supplied main key. The blob is left untouched; no partial value
	// is ever produced.
	ErrKeyMismatch = errors.New("sealed blob key mismatch")

	// ErrCorrupt is returned when a blob opens but its contents cannot
	// be decoded into the expected value.
	ErrCorrupt = errors.New("sealed blob corrupt")

	// ErrInvalidKeySize is returned when the main key has the wrong size.
	ErrInvalidKeySize = errors.New("invalid main key size")
)
