package chat

import "errors"

// Error codes for sync failures.
const (
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeDeliveryFailed     = "delivery_failed"
	ErrCodeChannelError       = "channel_error"
)

var (
	// ErrStorageUnavailable means the local store could not be opened or
	// queried. The session degrades to an empty read-only view.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDeliveryFailed means the remote service rejected or timed out a
	// send. The message stays unsynced for a later reconcile pass.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrChannelError means the push subscription dropped. Recovered by
	// resubscribing; never surfaced to the user.
	ErrChannelError = errors.New("push channel error")
)

// SyncError wraps a code and human-readable message.
type SyncError struct {
	Code    string
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError builds a SyncError with the given code.
func NewSyncError(code, msg string, err error) *SyncError {
	return &SyncError{Code: code, Message: msg, Err: err}
}
