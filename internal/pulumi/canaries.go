package provider

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/distro-backend/internal/authapi"
	"github.com/mikecbrant/distro-backend/internal/awssdk"
	"github.com/mikecbrant/distro-backend/internal/canary"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// canaryVarNames maps canary template variables to auth handler names.
var canaryVarNames = map[string]string{
	"LIST_USERS_FUNCTION":         authapi.NameListUsers,
	"GET_USER_FUNCTION":           authapi.NameGetUser,
	"CREATE_USER_FUNCTION":        authapi.NameCreateUser,
	"CREATE_USER_PUBLIC_FUNCTION": authapi.NameCreateUserPublic,
	"DELETE_USER_FUNCTION":        authapi.NameDeleteUser,
}

// regionFromArn extracts the region segment of an ARN.
func regionFromArn(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) > 3 {
		return parts[3]
	}
	return ""
}

// maybeRunCanaries runs the built-in and consumer canaries against the
// deployed functions once their names are known. Previews never run them.
func maybeRunCanaries(ctx *pulumi.Context, name string, args BackendArgs, fns *backendFunctions, cog *cognitoResources) (pulumi.StringOutput, bool) {
	if args.CanaryFile == nil || ctx.DryRun() {
		return pulumi.StringOutput{}, false
	}
	keys := make([]string, 0, len(canaryVarNames)+3)
	ins := []pulumi.StringOutput{}
	for v, handler := range canaryVarNames {
		keys = append(keys, v)
		ins = append(ins, fns.auth[handler].Name)
	}
	keys = append(keys, "AUTH_ROLE_ARN", "USER_POOL_ARN", "SECRET_ARN")
	ins = append(ins, fns.role.Arn, cog.pool.Arn, cog.secretArn)

	path := *args.CanaryFile
	logger := logging.New(valueOrDefault(args.LogLevel, "info"), logging.Fields{"component": name}).
		With(logging.Fields{"canaryFile": path})
	status := pulumi.All(outputsToInterfaces(toOutputs(ins))...).ApplyT(func(xs []interface{}) (string, error) {
		vars := make(map[string]string, len(keys))
		for i, k := range keys {
			vars[k] = xs[i].(string)
		}
		doc, err := canary.Load(path, vars)
		if err != nil {
			return "", err
		}
		cfg, err := awssdk.LoadDefault(ctx.Context(), regionFromArn(vars["USER_POOL_ARN"]))
		if err != nil {
			return "", err
		}
		runner := canary.NewRunner(lambda.NewFromConfig(cfg), iam.NewFromConfig(cfg), logger)
		if err := runner.Run(ctx.Context(), doc); err != nil {
			return "", err
		}
		return fmt.Sprintf("passed %d cases, %d permission checks", len(doc.Cases), len(doc.Permissions)), nil
	}).(pulumi.StringOutput)
	return status, true
}
