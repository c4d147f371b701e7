package wiring

import (
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikecbrant/distro-backend/internal/awssdk/dynamo"
	"github.com/mikecbrant/distro-backend/internal/config"
	"github.com/mikecbrant/distro-backend/internal/datastore"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName:           "distro",
		HasuraURL:         "hasura.example.com",
		HasuraAdminSecret: "s3cret",
		RoleStore:         config.RoleStoreHasura,
		RoleTable:         "roles",
		HTTPTimeout:       3 * time.Second,
		PublicRole:        "site-user",
		DefaultRole:       "site-user",
		GuestRole:         "guest",
		WeatherAPIURL:     "https://weather.example.com/v1",
		WeatherAPIKey:     "key",
	}
}

func TestRoleStore_Selection(t *testing.T) {
	cfg := testConfig()
	rs, err := RoleStore(cfg, awsv2.Config{Region: "us-east-1"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &datastore.GraphQLStore{}, rs)

	cfg.RoleStore = config.RoleStoreDynamoDB
	rs, err = RoleStore(cfg, awsv2.Config{Region: "us-east-1"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &dynamo.RoleStore{}, rs)

	cfg.RoleStore = "redis"
	_, err = RoleStore(cfg, awsv2.Config{}, nil)
	assert.ErrorContains(t, err, "unknown role store")
}

func TestRoleStore_BadHasuraURL(t *testing.T) {
	cfg := testConfig()
	cfg.HasuraURL = "http://"
	_, err := RoleStore(cfg, awsv2.Config{}, nil)
	assert.Error(t, err)
}

func TestHTTPClient_UsesTimeout(t *testing.T) {
	assert.Equal(t, 3*time.Second, HTTPClient(testConfig()).Timeout)
}

func TestAuthAPI_DispatchesEveryHandler(t *testing.T) {
	h, err := AuthAPI(testConfig(), awsv2.Config{Region: "us-east-1"}, nil)
	require.NoError(t, err)
	for _, name := range []string{"listCognitoUsers", "getCognitoUser", "createCognitoUser", "createCognitoUserPublic", "deleteCognitoUser"} {
		fn, err := h.Dispatch(name)
		require.NoError(t, err, name)
		assert.NotNil(t, fn, name)
	}
}

func TestHooksAndGQL(t *testing.T) {
	hk, err := Hooks(testConfig(), awsv2.Config{Region: "us-east-1"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, hk)

	g, err := GQL(testConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, g)
}
