package tablestore

import (
	"errors"
	"fmt"
	"net/http"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Err is a kind of transfer error. Use errors.Is to test for a kind.
type Err int

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	ErrTransientTransport Err = iota + 1
	ErrPermanentRequest
	ErrManifestMissing
	ErrPartUnavailable
	ErrRetriesExhausted
	ErrUnsupportedEmptyChunkedUpload
	ErrNotFound
	ErrPartialTransfer
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e Err) Error() string {
	switch e {
	case ErrTransientTransport:
		return "transient transport error"
	case ErrPermanentRequest:
		return "permanent request error"
	case ErrManifestMissing:
		return "manifest missing"
	case ErrPartUnavailable:
		return "part unavailable"
	case ErrRetriesExhausted:
		return "retries exhausted"
	case ErrUnsupportedEmptyChunkedUpload:
		return "empty payload cannot be uploaded in parts"
	case ErrNotFound:
		return "not found"
	case ErrPartialTransfer:
		return "partial transfer"
	default:
		return fmt.Sprintf("transfer error %d", int(e))
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// With returns an error of this kind with additional context
func (e Err) With(args ...any) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprint(args...))
}

// Withf returns an error of this kind with a formatted message. A %w verb in
// the format keeps the cause reachable through errors.Is and errors.As.
func (e Err) Withf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", e, fmt.Errorf(format, args...))
}

// StatusErr maps an unsuccessful HTTP status to an error kind. It returns nil
// for 2xx codes.
func StatusErr(code int, msg string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	status := fmt.Sprintf("%d %s", code, http.StatusText(code))
	if msg != "" {
		status += ": " + msg
	}
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound.With(status)
	case code == http.StatusNotImplemented:
		return ErrPermanentRequest.With(status)
	case code > 499:
		return ErrTransientTransport.With(status)
	default:
		return ErrPermanentRequest.With(status)
	}
}

// IsPermanent returns true when retrying the operation cannot succeed
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentRequest) || errors.Is(err, ErrUnsupportedEmptyChunkedUpload)
}
