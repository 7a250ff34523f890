package session

import (
	"errors"
	"fmt"
)

// ErrAlreadyJoined is returned when Join is called on an active session
var ErrAlreadyJoined = errors.New("session already joined")

// ErrClosed is returned when Join is called after Leave
var ErrClosed = errors.New("session is closed")

// MediaAcquisitionError reports a failure to obtain a local capture
// device. Missing video is fatal: a consultation session never starts
// without a camera.
type MediaAcquisitionError struct {
	Kind string // "audio" or "video"
	Err  error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("failed to acquire %s capture: %v", e.Kind, e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error {
	return e.Err
}
