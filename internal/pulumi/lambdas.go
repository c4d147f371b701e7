package provider

import (
	"fmt"
	"sort"

	awsiam "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	awslambda "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/distro-backend/internal/authapi"
)

const (
	apiMemoryMB       = 1024
	apiTimeoutSeconds = 4
	gqlRoute          = "gql"
)

// cognitoAdminActions are the only user pool operations the auth API performs.
var cognitoAdminActions = []string{"cognito-idp:ListUsers", "cognito-idp:AdminCreateUser", "cognito-idp:AdminDeleteUser"}

type backendFunctions struct {
	role *awsiam.Role
	auth map[string]*awslambda.Function
	gql  *awslambda.Function
}

// names maps each handler name (and gql) to its deployed function name.
func (f *backendFunctions) names() pulumi.StringMap {
	out := pulumi.StringMap{gqlRoute: f.gql.Name}
	for n, fn := range f.auth {
		out[n] = fn.Name
	}
	return out
}

func (f *backendFunctions) sortedAuthNames() []string {
	names := make([]string, 0, len(f.auth))
	for n := range f.auth {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func authAPIPolicy(secretArn, poolArn, tableArn string) string {
	stmts := []policyStatement{
		{Effect: "Allow", Action: "secretsmanager:GetSecretValue", Resource: secretArn},
		{Effect: "Allow", Action: cognitoAdminActions, Resource: poolArn},
	}
	if tableArn != "" {
		stmts = append(stmts, tableStatement(tableArn))
	}
	return policyDocument(stmts...)
}

// createAuthFunctions builds the five auth API functions on one shared role and
// the gql function on its own role.
func createAuthFunctions(ctx *pulumi.Context, name string, args BackendArgs, env pulumi.StringMap, cog *cognitoResources, table *roleTable, opts []pulumi.ResourceOption) (*backendFunctions, error) {
	code, err := codeArchive(args.Artifacts.AuthAPIDir, args.Artifacts.Include, args.Artifacts.Exclude)
	if err != nil {
		return nil, err
	}
	tableArn := pulumi.String("").ToStringOutput()
	if table != nil {
		tableArn = table.arn
	}
	policy := pulumi.All(cog.secretArn, cog.pool.Arn, tableArn).ApplyT(func(xs []interface{}) string {
		return authAPIPolicy(xs[0].(string), xs[1].(string), xs[2].(string))
	}).(pulumi.StringOutput)
	role, err := createFunctionRole(ctx, fmt.Sprintf("%s-authapi-role", name), policy, true, opts)
	if err != nil {
		return nil, err
	}

	out := &backendFunctions{role: role, auth: map[string]*awslambda.Function{}}
	for _, handler := range authapi.Names {
		fn, err := newGoFunction(ctx, fmt.Sprintf("%s-%s", name, handler), goFunctionArgs{
			role: role.Arn, code: code, memory: apiMemoryMB, timeout: apiTimeoutSeconds,
			env: withEnv(env, map[string]string{"HANDLER": handler}),
		}, opts)
		if err != nil {
			return nil, err
		}
		out.auth[handler] = fn
	}

	gqlCode, err := codeArchive(args.Artifacts.GqlDir, args.Artifacts.Include, args.Artifacts.Exclude)
	if err != nil {
		return nil, err
	}
	gqlRole, err := createFunctionRole(ctx, fmt.Sprintf("%s-gql-role", name), pulumi.StringOutput{}, false, opts)
	if err != nil {
		return nil, err
	}
	gqlEnv := withEnv(env, map[string]string{"HANDLER": gqlRoute})
	if args.WeatherAPIKey != nil {
		gqlEnv["WEATHER_API_KEY"] = pulumi.ToSecret(pulumi.String(*args.WeatherAPIKey)).(pulumi.StringOutput)
	}
	out.gql, err = newGoFunction(ctx, fmt.Sprintf("%s-gql", name), goFunctionArgs{
		role: gqlRole.Arn, code: gqlCode, memory: apiMemoryMB, timeout: apiTimeoutSeconds, env: gqlEnv,
	}, opts)
	if err != nil {
		return nil, err
	}
	return out, nil
}
