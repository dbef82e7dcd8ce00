package invalidation

import "errors"

// Define static errors
var (
	ErrInvalidNotification = errors.New("invalid notification")
	ErrListenerRunning     = errors.New("listener already started")
)
