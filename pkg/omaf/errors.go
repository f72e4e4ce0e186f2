package omaf

import "errors"

// ErrStructureTruncated is returned when parse consumes more bytes than the
// bitstream has left. It is never wrapped with positional detail beyond the
// standard %w chain; callers needing the offset should track it themselves.
var ErrStructureTruncated = errors.New("omaf: structure truncated")

// ErrStructureMalformed is the error kind for a structurally invalid value
// that is not simply short of bytes (e.g. a union write requested for an
// empty tag with no matching payload). No encoder or decoder in this package
// returns it; truncation is the only failure they report.
var ErrStructureMalformed = errors.New("omaf: structure malformed")
