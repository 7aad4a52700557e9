package repository

import "errors"

// ErrNotFound indicates the requested record does not exist. Consumed-nonce and
// device-key lookups rely on it to distinguish absence from backend failure.
var ErrNotFound = errors.New("repository: not found")
