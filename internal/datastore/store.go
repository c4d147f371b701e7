// Package datastore defines the role store contract and its GraphQL (Hasura) backend.
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoRoleMapping is returned by GetRole when no row exists for the user.
var ErrNoRoleMapping = errors.New("no role mapping")

// RoleStore persists the single role assigned to each user id.
type RoleStore interface {
	// UpsertRole sets role for userID, creating the row when absent. Re-issuing
	// the same pair leaves the stored state unchanged. The remote response body
	// is returned unvalidated.
	UpsertRole(ctx context.Context, userID, role string) (json.RawMessage, error)
	// InsertUser creates the row for a freshly confirmed account.
	InsertUser(ctx context.Context, userID, handle, role string) error
	// GetRole returns the stored role or ErrNoRoleMapping.
	GetRole(ctx context.Context, userID string) (string, error)
}

// RemoteWriteError reports a non-2xx answer from the data store.
type RemoteWriteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("data store answered HTTP %d", e.StatusCode)
}

// TransportError reports a request that never produced an HTTP response.
type TransportError struct{ Cause error }

func (e *TransportError) Error() string { return fmt.Sprintf("data store transport: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

// ResponseParseError reports a 2xx response whose body is not valid JSON. The
// remote write may already have committed.
type ResponseParseError struct {
	Body  string
	Cause error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("data store response is not valid JSON: %v", e.Cause)
}
func (e *ResponseParseError) Unwrap() error { return e.Cause }

// GraphQLError carries the errors array of an otherwise successful response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	if len(e.Messages) == 0 {
		return "graphql error"
	}
	return "graphql error: " + e.Messages[0]
}

// NoRoleMappingError formats the failure surfaced to the identity provider.
func NoRoleMappingError(userID string) error {
	return fmt.Errorf("%w in user table for user id %s", ErrNoRoleMapping, userID)
}
