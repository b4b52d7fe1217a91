package domain

import "errors"

// ErrNotFound is returned by repositories when a row does not exist or is
// not visible to the requesting user.
var ErrNotFound = errors.New("not found")
