// Command distro-stack is the Pulumi program deploying <APP_NAME>-Backend from
// environment settings.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	aws "github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	provider "github.com/mikecbrant/distro-backend/internal/pulumi"
)

// requiredVars must all be present before anything is deployed.
var requiredVars = []string{
	"APP_NAME",
	"AWS_REGION",
	"AWS_ACCOUNT_ID",
	"AWS_PROFILE",
	"HOSTED_ZONE_ID",
	"HOSTED_ZONE_NAME",
	"HASURA_HOSTNAME",
	"HASURA_URL",
	"HASURA_ADMIN_SECRET",
	"LAMBDAS_HOSTNAME",
	"HASURA_GQL_REMOTE_SCHEMA",
}

type stackSettings struct {
	accountID string
	args      provider.BackendArgs
}

func optional(lookup func(string) (string, bool), key string) *string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return &v
	}
	return nil
}

// settingsFromEnv maps the environment onto the component args.
func settingsFromEnv(lookup func(string) (string, bool)) (stackSettings, error) {
	vals := map[string]string{}
	for _, k := range requiredVars {
		v, ok := lookup(k)
		if !ok || strings.TrimSpace(v) == "" {
			return stackSettings{}, fmt.Errorf("%s must be defined in environment", k)
		}
		vals[k] = v
	}
	dist := "dist"
	if v := optional(lookup, "ARTIFACTS_DIR"); v != nil {
		dist = *v
	}
	multiAz := false
	if v := optional(lookup, "MULTI_AZ"); v != nil {
		multiAz = strings.EqualFold(*v, "true")
	}
	retain := true
	if v := optional(lookup, "RETAIN_ON_DELETE"); v != nil {
		retain = !strings.EqualFold(*v, "false")
	}
	args := provider.BackendArgs{
		AppName:           vals["APP_NAME"],
		HasuraURL:         pulumi.StringRef(vals["HASURA_URL"]),
		HasuraAdminSecret: pulumi.StringRef(vals["HASURA_ADMIN_SECRET"]),
		HostedZoneID:      pulumi.StringRef(vals["HOSTED_ZONE_ID"]),
		HostedZoneName:    pulumi.StringRef(vals["HOSTED_ZONE_NAME"]),
		LambdasHostname:   pulumi.StringRef(vals["LAMBDAS_HOSTNAME"]),
		Artifacts: provider.ArtifactsConfig{
			AuthAPIDir: filepath.Join(dist, "authapi"),
			HooksDir:   filepath.Join(dist, "cognito-hooks"),
			GqlDir:     filepath.Join(dist, "gql"),
		},
		RoleStore:      optional(lookup, "ROLE_STORE"),
		MultiAz:        &multiAz,
		RetainOnDelete: &retain,
		CanaryFile:     optional(lookup, "CANARY_FILE"),
		WeatherAPIKey:  optional(lookup, "WEATHER_API_KEY"),
		LogLevel:       optional(lookup, "LOG_LEVEL"),
	}
	if v := optional(lookup, "DEPLOY_HASURA"); v != nil && strings.EqualFold(*v, "true") {
		args.Hasura = &provider.HasuraConfig{
			Hostname:         vals["HASURA_HOSTNAME"],
			RemoteSchema:     pulumi.StringRef(vals["HASURA_GQL_REMOTE_SCHEMA"]),
			DatabasePassword: optional(lookup, "HASURA_DATABASE_PASSWORD"),
		}
	}
	return stackSettings{accountID: vals["AWS_ACCOUNT_ID"], args: args}, nil
}

func deploy(ctx *pulumi.Context, s stackSettings) error {
	caller, err := aws.GetCallerIdentity(ctx, nil)
	if err != nil {
		return err
	}
	if caller.AccountId != s.accountID {
		return fmt.Errorf("credentials belong to account %s, AWS_ACCOUNT_ID is %s", caller.AccountId, s.accountID)
	}
	backend, err := provider.NewBackend(ctx, s.args.AppName+"-Backend", s.args)
	if err != nil {
		return err
	}
	ctx.Export("UserPool", backend.Cognito.UserPoolID)
	ctx.Export("UserPoolClient", backend.Cognito.UserPoolClientID)
	ctx.Export("Identity", backend.Cognito.IdentityPoolID)
	ctx.Export("FileBucketURL", pulumi.Sprintf("s3://%s", backend.Cognito.FileBucket))
	ctx.Export("SecretArn", backend.SecretArn)
	ctx.Export("ApiUrl", backend.Api.InvokeURL)
	ctx.Export("CustomApiUrl", backend.Api.CustomURL)
	ctx.Export("HasuraEndpoint", backend.HasuraEndpoint)
	return nil
}

func main() {
	_ = godotenv.Load()
	s, err := settingsFromEnv(os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	pulumi.Run(func(ctx *pulumi.Context) error { return deploy(ctx, s) })
}
