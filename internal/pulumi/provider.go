package provider

import (
	"fmt"
	"strings"

	p "github.com/pulumi/pulumi-go-provider"
	"github.com/pulumi/pulumi-go-provider/infer"
	"github.com/pulumi/pulumi/sdk/v3/go/common/tokens"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/distro-backend/internal/config"
)

// BackendType is the component's Pulumi type token.
const BackendType = "distro-backend:index:Backend"

// NewProvider builds the component provider.
func NewProvider() (p.Provider, error) {
	return infer.NewProviderBuilder().
		WithComponents(infer.ComponentF(NewBackend)).
		Build()
}

// BackendArgs defines the inputs for the component resource.
type BackendArgs struct {
	// Application name; prefixes resource names and derives <appName>-CognitoSecret.
	AppName string `pulumi:"appName"`
	// Base URL or hostname of the GraphQL data store the functions write roles to.
	HasuraURL *string `pulumi:"hasuraUrl,optional"`
	// Admin secret sent to the data store.
	HasuraAdminSecret *string `pulumi:"hasuraAdminSecret,optional" provider:"secret"`
	// Route53 hosted zone for the custom API domain and optional Hasura hostname.
	HostedZoneID   *string `pulumi:"hostedZoneId,optional"`
	HostedZoneName *string `pulumi:"hostedZoneName,optional"`
	// Custom domain for the REST API. Requires hostedZoneId.
	LambdasHostname *string `pulumi:"lambdasHostname,optional"`
	// Build output directories for the Lambda binaries.
	Artifacts ArtifactsConfig `pulumi:"artifacts"`
	// Role store backend: hasura (default) or dynamodb. dynamodb provisions the role table.
	RoleStore *string `pulumi:"roleStore,optional"`
	// Spread the Hasura database and service over two availability zones.
	MultiAz *bool `pulumi:"multiAz,optional"`
	// When true, stateful resources are retained on delete.
	RetainOnDelete *bool `pulumi:"retainOnDelete,optional"`
	// Optional self-hosted Hasura on ECS Fargate.
	Hasura *HasuraConfig `pulumi:"hasura,optional"`
	// Optional canary YAML merged with the built-in canaries; canaries run post-deploy when set.
	CanaryFile *string `pulumi:"canaryFile,optional"`
	// Key for the weather API behind the gql route.
	WeatherAPIKey *string `pulumi:"weatherApiKey,optional" provider:"secret"`
	// Log level passed to every function.
	LogLevel *string `pulumi:"logLevel,optional"`
}

// ArtifactsConfig points at the compiled function bundles.
type ArtifactsConfig struct {
	AuthAPIDir string `pulumi:"authApiDir"`
	HooksDir   string `pulumi:"hooksDir"`
	GqlDir     string `pulumi:"gqlDir"`
	// doublestar patterns relative to each dir; default ["**"].
	Include []string `pulumi:"include,optional"`
	Exclude []string `pulumi:"exclude,optional"`
}

// HasuraConfig enables the self-hosted GraphQL engine.
type HasuraConfig struct {
	Hostname     string  `pulumi:"hostname"`
	RemoteSchema *string `pulumi:"remoteSchema,optional"`
	Image        *string `pulumi:"image,optional"`

	// Master password for the database; without it RDS manages the password and
	// the database URL secret is left for an operator to fill.
	DatabasePassword *string `pulumi:"databasePassword,optional" provider:"secret"`
}

// Backend is the component wiring identity, functions and the API.
type Backend struct {
	pulumi.ResourceState

	Cognito   CognitoOutputs         `pulumi:"cognito"`
	Api       ApiOutputs             `pulumi:"api"`
	Functions pulumi.StringMapOutput `pulumi:"functions"`
	SecretArn pulumi.StringOutput    `pulumi:"secretArn"`

	RoleTableArn   pulumi.StringPtrOutput `pulumi:"roleTableArn,optional"`
	HasuraEndpoint pulumi.StringPtrOutput `pulumi:"hasuraEndpoint,optional"`
	Canary         pulumi.StringPtrOutput `pulumi:"canary,optional"`
}

// CognitoOutputs groups identity outputs under the `cognito` object.
type CognitoOutputs struct {
	UserPoolID       pulumi.StringOutput `pulumi:"userPoolId"`
	UserPoolArn      pulumi.StringOutput `pulumi:"userPoolArn"`
	UserPoolClientID pulumi.StringOutput `pulumi:"userPoolClientId"`
	IdentityPoolID   pulumi.StringOutput `pulumi:"identityPoolId"`
	FileBucket       pulumi.StringOutput `pulumi:"fileBucket"`
}

// ApiOutputs groups REST API outputs under the `api` object.
type ApiOutputs struct {
	RestApiID pulumi.StringOutput    `pulumi:"restApiId"`
	InvokeURL pulumi.StringOutput    `pulumi:"invokeUrl"`
	CustomURL pulumi.StringPtrOutput `pulumi:"customUrl,optional"`
	RoleArn   pulumi.StringOutput    `pulumi:"roleArn"`
}

// Annotate attaches schema metadata used for provider docs and code generation.
func (c *Backend) Annotate(a infer.Annotator) {
	a.Describe(&c, "Provision the distro backend: Cognito user pool with lifecycle hooks, auth API functions behind API Gateway, and the gql route.")
	a.SetToken(tokens.ModuleName("index"), tokens.TypeName("Backend"))
}

// NewBackend is the component constructor used by infer.Component.
func NewBackend(ctx *pulumi.Context, name string, args BackendArgs, opts ...pulumi.ResourceOption) (*Backend, error) {
	comp := &Backend{}
	if err := ctx.RegisterComponentResource(BackendType, name, comp, opts...); err != nil {
		return nil, err
	}
	if err := normalizeBackendArgs(&args); err != nil {
		return nil, err
	}
	childOpts, retOpts := buildChildOptions(comp, opts, *args.RetainOnDelete)
	comp.RoleTableArn = absentString()
	comp.HasuraEndpoint = absentString()
	comp.Canary = absentString()

	var table *roleTable
	if *args.RoleStore == config.RoleStoreDynamoDB {
		t, err := createRoleTable(ctx, name, *args.RetainOnDelete, retOpts)
		if err != nil {
			return nil, err
		}
		table = t
		comp.RoleTableArn = t.arn.ToStringPtrOutput()
	}

	env := functionEnv(args, table)

	cog, err := createCognito(ctx, name, args, env, table, childOpts, retOpts)
	if err != nil {
		return nil, err
	}
	comp.Cognito = cog.outputs
	comp.SecretArn = cog.secretArn

	fns, err := createAuthFunctions(ctx, name, args, env, cog, table, childOpts)
	if err != nil {
		return nil, err
	}
	api, err := createRestApi(ctx, name, args, fns, childOpts)
	if err != nil {
		return nil, err
	}
	comp.Api = api
	comp.Functions = fns.names().ToStringMapOutput()

	if args.Hasura != nil {
		endpoint, err := createHasura(ctx, name, args, cog, childOpts, retOpts)
		if err != nil {
			return nil, err
		}
		comp.HasuraEndpoint = endpoint.ToStringPtrOutput()
	}

	if status, ok := maybeRunCanaries(ctx, name, args, fns, cog); ok {
		comp.Canary = status.ToStringPtrOutput()
	}

	if err := ctx.RegisterResourceOutputs(comp, pulumi.Map{
		"secretArn": comp.SecretArn,
		"functions": comp.Functions,
	}); err != nil {
		return nil, err
	}
	return comp, nil
}

func normalizeBackendArgs(args *BackendArgs) error {
	if strings.TrimSpace(args.AppName) == "" {
		return fmt.Errorf("appName must be set")
	}
	if args.RetainOnDelete == nil {
		b := false
		args.RetainOnDelete = &b
	}
	if args.MultiAz == nil {
		b := false
		args.MultiAz = &b
	}
	store := strings.ToLower(valueOrDefault(args.RoleStore, config.RoleStoreHasura))
	if store != config.RoleStoreHasura && store != config.RoleStoreDynamoDB {
		return fmt.Errorf("roleStore must be %q or %q, got %q", config.RoleStoreHasura, config.RoleStoreDynamoDB, store)
	}
	args.RoleStore = &store
	if args.HasuraURL == nil && args.Hasura != nil {
		u := "https://" + args.Hasura.Hostname
		args.HasuraURL = &u
	}
	if store == config.RoleStoreHasura && strings.TrimSpace(valueOrDefault(args.HasuraURL, "")) == "" {
		return fmt.Errorf("hasuraUrl (or hasura.hostname) must be set when roleStore is %q", config.RoleStoreHasura)
	}
	if (store == config.RoleStoreHasura || args.Hasura != nil) && strings.TrimSpace(valueOrDefault(args.HasuraAdminSecret, "")) == "" {
		return fmt.Errorf("hasuraAdminSecret must be set when roleStore is %q or hasura is provisioned", config.RoleStoreHasura)
	}
	if args.LambdasHostname != nil && args.HostedZoneID == nil {
		return fmt.Errorf("lambdasHostname requires hostedZoneId")
	}
	if args.Hasura != nil && args.HostedZoneID == nil {
		return fmt.Errorf("hasura requires hostedZoneId")
	}
	if zone := strings.TrimSuffix(valueOrDefault(args.HostedZoneName, ""), "."); zone != "" {
		for _, host := range hostnames(args) {
			if host != zone && !strings.HasSuffix(host, "."+zone) {
				return fmt.Errorf("hostname %q is not inside hosted zone %q", host, zone)
			}
		}
	}
	if strings.TrimSpace(args.Artifacts.AuthAPIDir) == "" || strings.TrimSpace(args.Artifacts.HooksDir) == "" || strings.TrimSpace(args.Artifacts.GqlDir) == "" {
		return fmt.Errorf("artifacts.authApiDir, artifacts.hooksDir and artifacts.gqlDir must be set")
	}
	return nil
}

func hostnames(args *BackendArgs) []string {
	var out []string
	if args.LambdasHostname != nil {
		out = append(out, *args.LambdasHostname)
	}
	if args.Hasura != nil {
		out = append(out, args.Hasura.Hostname)
	}
	return out
}
