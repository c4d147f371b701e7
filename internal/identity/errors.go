package identity

import (
	"fmt"

	awserrors "github.com/mikecbrant/distro-backend/internal/awssdk/errors"
)

// ProviderError wraps any failed call to the identity provider.
type ProviderError struct {
	// Op is the provider operation, e.g. AdminCreateUser.
	Op string
	// Code is the provider's error code when one was returned.
	Code  string
	Cause error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider %s failed (%s): %v", e.Op, e.Code, e.Cause)
	}
	return fmt.Sprintf("identity provider %s failed: %v", e.Op, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

func providerError(op string, err error) error {
	return &ProviderError{Op: op, Code: awserrors.Code(err), Cause: awserrors.Classify(err)}
}

// MissingAttributeError reports an identity record lacking a required attribute.
type MissingAttributeError struct {
	Name string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("identity record is missing attribute %q", e.Name)
}
