package gql

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	graphql "github.com/graph-gophers/graphql-go"

	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// Params is a GraphQL-over-HTTP request.
type Params struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// Handler executes GraphQL requests arriving through the gateway proxy.
type Handler struct {
	schema *graphql.Schema
	logger logging.Logger
}

// NewHandler wraps schema.
func NewHandler(schema *graphql.Schema, logger logging.Logger) *Handler {
	return &Handler{schema: schema, logger: logging.OrNop(logger)}
}

func reply(status int, v any) events.APIGatewayProxyResponse {
	b, _ := json.Marshal(v)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json", "Access-Control-Allow-Origin": "*"},
		Body:       string(b),
	}
}

func badRequest(msg string) events.APIGatewayProxyResponse {
	return reply(http.StatusBadRequest, map[string]any{"errors": []map[string]string{{"message": msg}}})
}

// params extracts the operation from a GET query string or a POST body.
func params(req events.APIGatewayProxyRequest) (Params, error) {
	var p Params
	if strings.EqualFold(req.HTTPMethod, http.MethodGet) {
		p.Query = req.QueryStringParameters["query"]
		p.OperationName = req.QueryStringParameters["operationName"]
		if v := req.QueryStringParameters["variables"]; v != "" {
			if err := json.Unmarshal([]byte(v), &p.Variables); err != nil {
				return p, err
			}
		}
		return p, nil
	}
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return p, err
		}
		body = b
	}
	err := json.Unmarshal(body, &p)
	return p, err
}

// Handle answers one proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if strings.EqualFold(req.HTTPMethod, http.MethodOptions) {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: map[string]string{
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Headers": "Content-Type,Authorization",
			"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
		}}, nil
	}
	p, err := params(req)
	if err != nil {
		h.logger.Warn("gql.request.invalid", logging.Fields{"error": err})
		return badRequest("invalid GraphQL request: " + err.Error()), nil
	}
	if strings.TrimSpace(p.Query) == "" {
		return badRequest("query must not be empty"), nil
	}
	res := h.schema.Exec(ctx, p.Query, p.OperationName, p.Variables)
	if len(res.Errors) > 0 {
		h.logger.Info("gql.exec.errors", logging.Fields{"count": len(res.Errors), "operation": p.OperationName})
	}
	return reply(http.StatusOK, res), nil
}
