// Package wiring builds the concrete clients each binary needs from Config.
package wiring

import (
	"fmt"
	"net/http"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/mikecbrant/distro-backend/internal/authapi"
	"github.com/mikecbrant/distro-backend/internal/awssdk/dynamo"
	"github.com/mikecbrant/distro-backend/internal/config"
	"github.com/mikecbrant/distro-backend/internal/datastore"
	"github.com/mikecbrant/distro-backend/internal/gql"
	"github.com/mikecbrant/distro-backend/internal/hooks"
	"github.com/mikecbrant/distro-backend/internal/identity"
	"github.com/mikecbrant/distro-backend/internal/secrets"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// HTTPClient bounds every outbound request by the configured timeout.
func HTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTPTimeout}
}

// RoleStore returns the backend selected by ROLE_STORE.
func RoleStore(cfg *config.Config, aws awsv2.Config, logger logging.Logger) (datastore.RoleStore, error) {
	switch cfg.RoleStore {
	case config.RoleStoreHasura:
		endpoint, err := cfg.GraphQLEndpoint()
		if err != nil {
			return nil, err
		}
		return datastore.NewGraphQLStore(endpoint, cfg.HasuraAdminSecret, HTTPClient(cfg), logger), nil
	case config.RoleStoreDynamoDB:
		return dynamo.NewRoleStore(dynamodb.NewFromConfig(aws), cfg.RoleTable, logger), nil
	default:
		return nil, fmt.Errorf("unknown role store %q", cfg.RoleStore)
	}
}

// Secrets returns a resolver for the app's credential bundle.
func Secrets(cfg *config.Config, aws awsv2.Config, logger logging.Logger) *secrets.Resolver {
	return secrets.NewResolver(secretsmanager.NewFromConfig(aws), cfg.SecretName(), logger)
}

// Directory returns the Cognito-backed identity client.
func Directory(cfg *config.Config, aws awsv2.Config, logger logging.Logger) *identity.Client {
	return identity.NewClient(cip.NewFromConfig(aws), identity.Options{
		TemporaryPassword: cfg.TemporaryPassword,
		PhoneNumber:       cfg.DefaultPhoneNumber,
	}, logger)
}

// AuthAPI wires the five auth handlers.
func AuthAPI(cfg *config.Config, aws awsv2.Config, logger logging.Logger) (*authapi.Handlers, error) {
	roles, err := RoleStore(cfg, aws, logger)
	if err != nil {
		return nil, err
	}
	return authapi.New(Secrets(cfg, aws, logger), Directory(cfg, aws, logger), roles, authapi.Options{
		PublicRole: cfg.PublicRole,
		Compensate: cfg.CompensateOnSyncFailure,
	}, logger), nil
}

// Hooks wires the Cognito triggers.
func Hooks(cfg *config.Config, aws awsv2.Config, logger logging.Logger) (*hooks.Hooks, error) {
	roles, err := RoleStore(cfg, aws, logger)
	if err != nil {
		return nil, err
	}
	return hooks.New(roles, hooks.Options{DefaultRole: cfg.DefaultRole, GuestRole: cfg.GuestRole}, logger), nil
}

// GQL wires the gql route over the weather API.
func GQL(cfg *config.Config, logger logging.Logger) (*gql.Handler, error) {
	weather := gql.NewWeatherClient(cfg.WeatherAPIURL, cfg.WeatherAPIKey, HTTPClient(cfg), logger)
	schema, err := gql.NewSchema(weather, logger)
	if err != nil {
		return nil, err
	}
	return gql.NewHandler(schema, logger), nil
}
