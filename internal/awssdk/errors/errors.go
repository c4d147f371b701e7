package errors

import (
	goerrors "errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ConflictError indicates a uniqueness/conditional conflict; callers should not blindly retry.
type ConflictError struct{ Cause error }

func (e *ConflictError) Error() string { return fmt.Sprintf("conflict: %v", e.Cause) }
func (e *ConflictError) Unwrap() error { return e.Cause }

// RetryableError indicates the request may succeed on a later attempt.
// Nothing in this module retries; the category only informs logs and callers.
type RetryableError struct{ Cause error }

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Cause) }
func (e *RetryableError) Unwrap() error { return e.Cause }

// NotFoundError indicates the addressed resource (secret, user, item) does not exist.
type NotFoundError struct{ Cause error }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %v", e.Cause) }
func (e *NotFoundError) Unwrap() error { return e.Cause }

// OpError is a generic wrapper for unexpected failures.
type OpError struct{ Cause error }

func (e *OpError) Error() string { return fmt.Sprintf("op error: %v", e.Cause) }
func (e *OpError) Unwrap() error { return e.Cause }

// Classify maps smithy errors to module-wide categories.
// Service-specific packages wrap the result with their own error types.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var api smithy.APIError
	if goerrors.As(err, &api) {
		switch api.ErrorCode() {
		case "ConditionalCheckFailedException", "TransactionCanceledException", "UsernameExistsException", "AliasExistsException":
			return &ConflictError{Cause: err}
		case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded", "TransactionInProgressException",
			"TooManyRequestsException", "LimitExceededException":
			return &RetryableError{Cause: err}
		case "ResourceNotFoundException", "UserNotFoundException":
			return &NotFoundError{Cause: err}
		}
	}
	return &OpError{Cause: err}
}

// Code returns the smithy API error code carried by err, or "" when there is none.
func Code(err error) string {
	var api smithy.APIError
	if goerrors.As(err, &api) {
		return api.ErrorCode()
	}
	return ""
}

// IsNotFound reports whether err classifies as NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return goerrors.As(Classify(err), &nf)
}
