package notification

import "errors"

// ErrInvalidArgument marks a rejected request. Nothing is written when it is returned.
var ErrInvalidArgument = errors.New("invalid argument")
