// Package secrets resolves the credential bundle the auth handlers need from
// AWS Secrets Manager. Every call re-fetches; nothing is cached.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	awserrors "github.com/mikecbrant/distro-backend/internal/awssdk/errors"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// ErrSecretNotFound is returned when the secret store has no entry under the secret name.
var ErrSecretNotFound = errors.New("secret not found")

// MalformedError reports a secret whose value is not the expected JSON document.
type MalformedError struct {
	SecretID string
	Reason   string
	Cause    error
}

func (e *MalformedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("secret %s is malformed: %s: %v", e.SecretID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("secret %s is malformed: %s", e.SecretID, e.Reason)
}

func (e *MalformedError) Unwrap() error { return e.Cause }

// Credentials is the credential bundle stored in the secret.
type Credentials struct {
	// PoolID identifies the Cognito user pool the handlers administer.
	PoolID string
}

// document is the stored JSON shape.
type document struct {
	HasuraCognitoUserPool string `json:"HasuraCognitoUserPool"`
}

// API is the subset of the Secrets Manager client used here.
type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver fetches the credential bundle by name.
type Resolver struct {
	client   API
	secretID string
	logger   logging.Logger
}

// NewResolver returns a Resolver reading secretID through client.
func NewResolver(client API, secretID string, logger logging.Logger) *Resolver {
	return &Resolver{client: client, secretID: secretID, logger: logging.OrNop(logger)}
}

// SecretID returns the name the resolver reads.
func (r *Resolver) SecretID() string { return r.secretID }

// Resolve fetches and parses the credential bundle.
func (r *Resolver) Resolve(ctx context.Context) (Credentials, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(r.secretID)})
	if err != nil {
		if awserrors.IsNotFound(err) {
			return Credentials{}, fmt.Errorf("%w: %s: %w", ErrSecretNotFound, r.secretID, err)
		}
		return Credentials{}, fmt.Errorf("get secret %s: %w", r.secretID, awserrors.Classify(err))
	}
	creds, err := Parse(r.secretID, out.SecretString)
	if err != nil {
		return Credentials{}, err
	}
	r.logger.Debug("secrets.resolve.ok", logging.Fields{"secretId": r.secretID})
	return creds, nil
}

// Parse decodes a stored secret value into Credentials.
func Parse(secretID string, value *string) (Credentials, error) {
	if value == nil {
		return Credentials{}, &MalformedError{SecretID: secretID, Reason: "no string value"}
	}
	var doc document
	if err := json.Unmarshal([]byte(*value), &doc); err != nil {
		return Credentials{}, &MalformedError{SecretID: secretID, Reason: "invalid JSON", Cause: err}
	}
	pool := strings.TrimSpace(doc.HasuraCognitoUserPool)
	if pool == "" {
		return Credentials{}, &MalformedError{SecretID: secretID, Reason: "missing HasuraCognitoUserPool"}
	}
	return Credentials{PoolID: pool}, nil
}

// Document renders the JSON value a secret must hold for the given pool id.
func Document(poolID string) (string, error) {
	b, err := json.Marshal(document{HasuraCognitoUserPool: poolID})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
