package chat

import "errors"

// Pipeline failures. Handlers map these to status codes with errors.Is;
// the wrapped cause is logged, never returned to clients.
var (
	ErrValidation  = errors.New("validation failed")
	ErrUpload      = errors.New("image upload failed")
	ErrPersistence = errors.New("storage failure")
	ErrNotFound    = errors.New("not found")
)
