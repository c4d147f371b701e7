// Package config loads the runtime configuration of the Lambda binaries from the
// environment (and an optional .env file for local runs).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Role store backends.
const (
	RoleStoreHasura   = "hasura"
	RoleStoreDynamoDB = "dynamodb"
)

// Scope names the binary a Config is validated for; each needs a different subset.
type Scope string

const (
	ScopeAuthAPI Scope = "authapi"
	ScopeHooks   Scope = "hooks"
	ScopeGQL     Scope = "gql"
)

// Config holds the runtime configuration. It is parsed once at process start and
// passed by reference into every component.
type Config struct {
	// AppName derives the credential bundle secret name (<AppName>-CognitoSecret).
	AppName string `env:"APP_NAME"`
	// Region is used only to construct AWS clients.
	Region string `env:"AWS_REGION"`
	// Handler selects which handler a multi-handler binary serves. Falls back to Lambda's _HANDLER.
	Handler string `env:"HANDLER"`
	// LogLevel is debug|info|warn|error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// HasuraURL is the data store base URL or bare hostname; /v1/graphql is appended.
	HasuraURL string `env:"HASURA_URL"`
	// HasuraAdminSecret is sent as x-hasura-admin-secret.
	HasuraAdminSecret string `env:"HASURA_ADMIN_SECRET"`
	// RoleStore selects the role assignment backend (hasura|dynamodb).
	RoleStore string `env:"ROLE_STORE" envDefault:"hasura"`
	// RoleTable is the DynamoDB table name when RoleStore is dynamodb.
	RoleTable string `env:"ROLE_TABLE"`
	// HTTPTimeout bounds each data store call; the hosting environment still enforces its own limit.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"4s"`

	// PublicRole is the only role createCognitoUserPublic ever assigns.
	PublicRole string `env:"PUBLIC_ROLE" envDefault:"site-user"`
	// DefaultRole is inserted on sign-up and used as the token's default role.
	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"site-user"`
	// GuestRole is the fixed lower-privilege role added to every token.
	GuestRole string `env:"GUEST_ROLE" envDefault:"guest"`
	// TemporaryPassword is set on administratively created accounts.
	TemporaryPassword string `env:"TEMPORARY_PASSWORD" envDefault:"Password123$"`
	// DefaultPhoneNumber, when set, is attached to administratively created accounts.
	DefaultPhoneNumber string `env:"DEFAULT_PHONE_NUMBER"`
	// CompensateOnSyncFailure deletes a freshly created identity record when the role write fails.
	CompensateOnSyncFailure bool `env:"COMPENSATE_ON_SYNC_FAILURE" envDefault:"true"`

	// WeatherAPIURL is the base URL of the weather API behind the gql route.
	WeatherAPIURL string `env:"WEATHER_API_URL" envDefault:"https://api.weatherapi.com/v1"`
	// WeatherAPIKey authenticates against the weather API.
	WeatherAPIKey string `env:"WEATHER_API_KEY"`

	// LambdaHandler is Lambda's own handler setting, used when HANDLER is empty.
	LambdaHandler string `env:"_HANDLER"`
}

// Load reads .env (if present) and parses Config from the environment.
// Missing .env is ignored. Env vars win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse builds Config from the current environment without touching .env.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.RoleStore = strings.ToLower(strings.TrimSpace(cfg.RoleStore))
	if cfg.Handler == "" {
		cfg.Handler = cfg.LambdaHandler
	}
	return &cfg, nil
}

// Validate checks the fields the given binary depends on.
func (c *Config) Validate(scope Scope) error {
	var errs []error
	switch scope {
	case ScopeAuthAPI:
		if strings.TrimSpace(c.AppName) == "" {
			errs = append(errs, errors.New("config: APP_NAME must be set"))
		}
		if strings.TrimSpace(c.PublicRole) == "" {
			errs = append(errs, errors.New("config: PUBLIC_ROLE must not be empty"))
		}
		errs = append(errs, c.validateRoleStore()...)
	case ScopeHooks:
		if strings.TrimSpace(c.DefaultRole) == "" || strings.TrimSpace(c.GuestRole) == "" {
			errs = append(errs, errors.New("config: DEFAULT_ROLE and GUEST_ROLE must not be empty"))
		}
		errs = append(errs, c.validateRoleStore()...)
	case ScopeGQL:
		// A missing WEATHER_API_KEY is allowed; lookups then fail and resolve to the empty result.
		if u, err := url.Parse(c.WeatherAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: WEATHER_API_URL %q is not a valid URL", c.WeatherAPIURL))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown scope %q", scope))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("config: HTTP_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateRoleStore() []error {
	switch c.RoleStore {
	case RoleStoreHasura:
		var errs []error
		if strings.TrimSpace(c.HasuraURL) == "" {
			errs = append(errs, errors.New("config: HASURA_URL must be set"))
		} else if _, err := c.GraphQLEndpoint(); err != nil {
			errs = append(errs, err)
		}
		if strings.TrimSpace(c.HasuraAdminSecret) == "" {
			errs = append(errs, errors.New("config: HASURA_ADMIN_SECRET must be set"))
		}
		return errs
	case RoleStoreDynamoDB:
		if strings.TrimSpace(c.RoleTable) == "" {
			return []error{errors.New("config: ROLE_TABLE must be set when ROLE_STORE=dynamodb")}
		}
		return nil
	default:
		return []error{fmt.Errorf("config: ROLE_STORE must be %q or %q (got %q)", RoleStoreHasura, RoleStoreDynamoDB, c.RoleStore)}
	}
}

// GraphQLEndpoint returns the data store's GraphQL URL. HASURA_URL may be a bare
// hostname (https is assumed) or a URL with scheme.
func (c *Config) GraphQLEndpoint() (string, error) {
	raw := strings.TrimSpace(c.HasuraURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" || strings.HasSuffix(u.Host, ":") {
		return "", fmt.Errorf("config: HASURA_URL %q is not a valid host or URL", c.HasuraURL)
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/v1/graphql") + "/v1/graphql"
	return u.String(), nil
}

// SecretName is the credential bundle's name in the secret store.
func (c *Config) SecretName() string { return SecretNameFor(c.AppName) }

// SecretNameFor derives the credential bundle's secret name from an application name.
func SecretNameFor(appName string) string { return appName + "-CognitoSecret" }
