package segment

import "errors"

// ErrInvalidArgument flags a malformed write request, e.g. an empty
// BSST segment.
var ErrInvalidArgument = errors.New("segment: invalid argument")

// ErrCorruption flags an on-disk segment whose structure does not
// match what its own metadata or format claims.
var ErrCorruption = errors.New("segment: corrupt segment")

// ErrNotFound names the condition of a key absent from a segment.
// Reader.Get does not return it; it reports absence with ok == false.
var ErrNotFound = errors.New("segment: key not found")
