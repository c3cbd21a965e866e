package domain

import "errors"

// ErrValidation marks input rejected before any target is contacted.
var ErrValidation = errors.New("validation error")
