package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

const (
	upsertRoleMutation = `mutation UpsertUserRole($id: uuid!, $role: String!) {
  insert_user_one(object: {id: $id, role: $role}, on_conflict: {constraint: user_pkey, update_columns: [role]}) {
    id
    role
  }
}`
	insertUserMutation = `mutation InsertUser($id: uuid!, $handle: String, $role: String!) {
  insert_user_one(object: {id: $id, handle: $handle, role: $role}) {
    id
  }
}`
	roleQuery = `query UserRole($id: uuid!) {
  user_by_pk(id: $id) {
    role
  }
}`
)

// AdminSecretHeader carries the data store's administrative secret.
const AdminSecretHeader = "x-hasura-admin-secret"

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// GraphQLStore is a RoleStore speaking GraphQL over HTTPS with admin credentials.
// Every call is a single POST; nothing is retried.
type GraphQLStore struct {
	endpoint    string
	adminSecret string
	http        Doer
	logger      logging.Logger
}

var _ RoleStore = (*GraphQLStore)(nil)

// NewGraphQLStore returns a store posting to endpoint. A nil client falls back to http.DefaultClient.
func NewGraphQLStore(endpoint, adminSecret string, client Doer, logger logging.Logger) *GraphQLStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &GraphQLStore{endpoint: endpoint, adminSecret: adminSecret, http: client, logger: logging.OrNop(logger)}
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (e envelope) err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, x := range e.Errors {
		msgs = append(msgs, x.Message)
	}
	return &GraphQLError{Messages: msgs}
}

// post sends one operation and returns the raw JSON body of a 2xx answer.
func (s *GraphQLStore) post(ctx context.Context, op string, body request) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AdminSecretHeader, s.adminSecret)

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Error("datastore.transport", logging.Fields{"op": op, "error": err})
		return nil, &TransportError{Cause: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Error("datastore.remote_write", logging.Fields{"op": op, "status": resp.StatusCode})
		return nil, &RemoteWriteError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if !json.Valid(raw) {
		var parsed any
		perr := json.Unmarshal(raw, &parsed)
		return nil, &ResponseParseError{Body: string(raw), Cause: perr}
	}
	s.logger.Debug("datastore.ok", logging.Fields{"op": op, "status": resp.StatusCode})
	return raw, nil
}

// UpsertRole issues the idempotent role mutation and returns the response body.
// GraphQL-level errors in a 2xx body are logged but not treated as failures.
func (s *GraphQLStore) UpsertRole(ctx context.Context, userID, role string) (json.RawMessage, error) {
	raw, err := s.post(ctx, "upsert_role", request{
		Query:     upsertRoleMutation,
		Variables: map[string]any{"id": userID, "role": role},
	})
	if err != nil {
		return nil, err
	}
	var env envelope
	if json.Unmarshal(raw, &env) == nil {
		if gerr := env.err(); gerr != nil {
			s.logger.Warn("datastore.upsert_role.graphql_errors", logging.Fields{"error": gerr})
		}
	}
	return raw, nil
}

// InsertUser creates the user row.
func (s *GraphQLStore) InsertUser(ctx context.Context, userID, handle, role string) error {
	raw, err := s.post(ctx, "insert_user", request{
		Query:     insertUserMutation,
		Variables: map[string]any{"id": userID, "handle": handle, "role": role},
	})
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &ResponseParseError{Body: string(raw), Cause: err}
	}
	return env.err()
}

// GetRole reads the stored role for userID.
func (s *GraphQLStore) GetRole(ctx context.Context, userID string) (string, error) {
	raw, err := s.post(ctx, "get_role", request{
		Query:     roleQuery,
		Variables: map[string]any{"id": userID},
	})
	if err != nil {
		return "", err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &ResponseParseError{Body: string(raw), Cause: err}
	}
	if gerr := env.err(); gerr != nil {
		return "", gerr
	}
	var data struct {
		UserByPK *struct {
			Role *string `json:"role"`
		} `json:"user_by_pk"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", &ResponseParseError{Body: string(raw), Cause: err}
		}
	}
	// A missing row and a row without a role both mean the user has no mapping.
	if data.UserByPK == nil || data.UserByPK.Role == nil || *data.UserByPK.Role == "" {
		return "", NoRoleMappingError(userID)
	}
	return *data.UserByPK.Role, nil
}
