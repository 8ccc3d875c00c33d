package redmine

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when a run is cancelled between source records.
var ErrInterrupted = errors.New("import interrupted")

// RemoteFetchError reports a failed request against the source API.
type RemoteFetchError struct {
	Endpoint   string
	StatusCode int // 0 when no HTTP response was received
	Reason     string
	Err        error
}

func (e *RemoteFetchError) Error() string {
	msg := fmt.Sprintf("redmine %s", e.Endpoint)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" returned %d", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a RemoteFetchError carrying an HTTP status,
// as opposed to a transport or decoding failure.
func IsStatus(err error) bool {
	var rf *RemoteFetchError
	return errors.As(err, &rf) && rf.StatusCode != 0
}

// IsNotFound reports whether err is a 404 from the source API.
func IsNotFound(err error) bool {
	var rf *RemoteFetchError
	return errors.As(err, &rf) && rf.StatusCode == 404
}
