package authapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// BadRequestError reports a body that failed boundary validation.
type BadRequestError struct {
	Reason string
	Cause  error
}

func (e *BadRequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bad request: %s: %v", e.Reason, e.Cause)
	}
	return "bad request: " + e.Reason
}

func (e *BadRequestError) Unwrap() error { return e.Cause }

// CreateInput is the payload of both create handlers.
type CreateInput struct {
	Email string `json:"Email"`
	Role  string `json:"Role"`
}

// GetInput is the payload of getCognitoUser.
type GetInput struct {
	UserID string `json:"userId"`
}

// DeleteInput is the payload of deleteCognitoUser.
type DeleteInput struct {
	Username string `json:"username"`
}

type wrapper struct {
	Input json.RawMessage `json:"input"`
}

func rawBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, &BadRequestError{Reason: "body is not valid base64", Cause: err}
	}
	return b, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// decodeInput unwraps {"input":{"input":{...}}} into dst. The single-nested
// {"input":{...}} form is accepted when the inner wrapper is absent.
func decodeInput(req events.APIGatewayProxyRequest, dst any) error {
	body, err := rawBody(req)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(body)) == "" {
		return &BadRequestError{Reason: "empty body"}
	}
	var outer wrapper
	if err := json.Unmarshal(body, &outer); err != nil {
		return &BadRequestError{Reason: "body is not a JSON object", Cause: err}
	}
	if isNull(outer.Input) {
		return &BadRequestError{Reason: "missing input"}
	}
	payload := outer.Input
	var inner wrapper
	if err := json.Unmarshal(outer.Input, &inner); err != nil {
		return &BadRequestError{Reason: "input is not a JSON object", Cause: err}
	}
	if !isNull(inner.Input) {
		payload = inner.Input
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return &BadRequestError{Reason: "input has the wrong shape", Cause: err}
	}
	return nil
}

func requireField(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return &BadRequestError{Reason: "missing " + name}
	}
	return nil
}

var errNoSub = errors.New("created record carries no sub attribute")
