package domain

import "errors"

// ErrNotFound is returned by caches and stores when the requested key or row
// does not exist.
var ErrNotFound = errors.New("not found")
