package authapi

import (
	"encoding/json"
	"errors"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mikecbrant/distro-backend/internal/datastore"
	"github.com/mikecbrant/distro-backend/internal/identity"
	"github.com/mikecbrant/distro-backend/internal/secrets"
)

// Extension is the diagnostic payload of a failure response.
type Extension struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// ErrorBody is the uniform failure body.
type ErrorBody struct {
	Message   string    `json:"message"`
	Extension Extension `json:"extension"`
}

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

func respond(status int, body []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: jsonHeaders, Body: string(body)}
}

func ok(v any) (events.APIGatewayProxyResponse, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return failure(err), nil
	}
	return respond(200, b), nil
}

// describe classifies err for the extension payload.
func describe(err error) Extension {
	ext := Extension{Type: "Error", Message: err.Error()}
	var (
		bad *BadRequestError
		pe  *identity.ProviderError
		ma  *identity.MissingAttributeError
		rw  *datastore.RemoteWriteError
		te  *datastore.TransportError
		rp  *datastore.ResponseParseError
		ge  *datastore.GraphQLError
		sm  *secrets.MalformedError
	)
	switch {
	case errors.As(err, &bad):
		ext.Type = "BadRequest"
	case errors.Is(err, secrets.ErrSecretNotFound):
		ext.Type = "SecretNotFound"
	case errors.As(err, &sm):
		ext.Type = "SecretMalformed"
	case errors.As(err, &pe):
		ext.Type = "ProviderError"
		ext.Code = pe.Code
	case errors.As(err, &ma):
		ext.Type = "MissingAttribute"
	case errors.As(err, &rw):
		ext.Type = "RemoteWriteError"
		ext.StatusCode = rw.StatusCode
	case errors.As(err, &te):
		ext.Type = "TransportError"
	case errors.As(err, &rp):
		ext.Type = "ResponseParseError"
	case errors.As(err, &ge):
		ext.Type = "GraphQLError"
	}
	return ext
}

// failure renders the uniform 400 response. Every error kind maps to 400.
func failure(err error) events.APIGatewayProxyResponse {
	b, merr := json.Marshal(ErrorBody{Message: "Error:" + err.Error(), Extension: describe(err)})
	if merr != nil {
		b = []byte(`{"message":"Error:internal"}`)
	}
	return respond(400, b)
}
