package kvengine

import "errors"

// ErrInvalidArgument flags a malformed caller request: currently, only
// a reserved key (0) passed to Put/Delete/Update.
var ErrInvalidArgument = errors.New("kvengine: invalid argument")

// ErrNotFound names the not-found condition of the error taxonomy. No
// operation returns it: Get and Scan report a missing key through
// their ok/empty-result path instead.
var ErrNotFound = errors.New("kvengine: key not found")

// ErrIO flags a failure in the underlying file system.
var ErrIO = errors.New("kvengine: i/o error")

// ErrCorruption flags an on-disk segment or state file whose contents
// do not match what its own structure claims.
var ErrCorruption = errors.New("kvengine: corrupt on-disk state")
