package elfinfect

import (
	"github.com/pkg/errors"
)

var (
	ErrUnsupportedFileType     = errors.New("only ET_EXEC executables can be patched")
	ErrNoExecutableLoadSegment = errors.New("no executable LOAD segment")
	ErrPayloadTooLarge         = errors.New("payload does not fit in the segment alignment gap")
	ErrAlreadyPatched          = errors.New("entry point already holds the payload")
	ErrEmptyPayload            = errors.New("payload is empty")

	// ErrVerification means the patched image failed the post-patch checks.
	// Nothing has been written when it is returned.
	ErrVerification = errors.New("patched image failed verification")
)
