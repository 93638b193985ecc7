package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrExceptionNotFound = errors.New("exception not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflicting update")
	ErrStaleGeneration   = errors.New("stale processing generation")
	ErrTemporary         = errors.New("temporary failure")
	ErrPermanent         = errors.New("permanent failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// TransientError marks an adapter failure worth retrying within the same
// processing attempt (timeouts, rate limits).
func TransientError(operation string, err error) error {
	return WrapError(ErrTemporary, operation, err)
}

// PermanentError marks an adapter failure that advances the chain
// immediately (corrupt input, unsupported format).
func PermanentError(operation string, err error) error {
	return WrapError(ErrPermanent, operation, err)
}
