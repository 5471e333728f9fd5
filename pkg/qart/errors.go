package qart

import "errors"

// ErrNotConfigured is returned when artifact storage is disabled.
var ErrNotConfigured = errors.New("artifact storage is not configured")
