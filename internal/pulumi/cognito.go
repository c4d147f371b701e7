package provider

import (
	"fmt"

	awscognito "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cognito"
	awsiam "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	awslambda "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	awss3 "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	awssm "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/secretsmanager"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/distro-backend/internal/config"
	"github.com/mikecbrant/distro-backend/internal/hooks"
	"github.com/mikecbrant/distro-backend/internal/secrets"
)

const (
	hookTimeoutSeconds = 4
	hookMemoryMB       = 128
)

type cognitoResources struct {
	outputs   CognitoOutputs
	pool      *awscognito.UserPool
	clientID  pulumi.StringOutput
	secretArn pulumi.StringOutput
	usersRole *awsiam.Role
}

// functionEnv is the environment shared by every function of the backend.
func functionEnv(args BackendArgs, table *roleTable) pulumi.StringMap {
	env := pulumi.StringMap{
		"APP_NAME":   pulumi.String(args.AppName),
		"LOG_LEVEL":  pulumi.String(valueOrDefault(args.LogLevel, "info")),
		"ROLE_STORE": pulumi.String(*args.RoleStore),
	}
	if args.HasuraURL != nil {
		env["HASURA_URL"] = pulumi.String(*args.HasuraURL)
	}
	if args.HasuraAdminSecret != nil {
		env["HASURA_ADMIN_SECRET"] = pulumi.ToSecret(pulumi.String(*args.HasuraAdminSecret)).(pulumi.StringOutput)
	}
	if table != nil {
		env["ROLE_TABLE"] = table.name
	}
	return env
}

func withEnv(base pulumi.StringMap, extra map[string]string) pulumi.StringMap {
	out := pulumi.StringMap{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = pulumi.String(v)
	}
	return out
}

func tableStatement(arn string) policyStatement {
	return policyStatement{
		Effect:   "Allow",
		Action:   []string{"dynamodb:GetItem", "dynamodb:PutItem", "dynamodb:UpdateItem", "dynamodb:ConditionCheckItem"},
		Resource: arn,
	}
}

// createFunctionRole creates a Lambda execution role with basic logging and an
// optional inline policy.
func createFunctionRole(ctx *pulumi.Context, name string, policy pulumi.StringOutput, withPolicy bool, opts []pulumi.ResourceOption) (*awsiam.Role, error) {
	role, err := awsiam.NewRole(ctx, name, &awsiam.RoleArgs{
		AssumeRolePolicy:  pulumi.String(lambdaAssumeRolePolicy),
		ManagedPolicyArns: pulumi.ToStringArray([]string{basicExecutionPolicyArn}),
	}, opts...)
	if err != nil {
		return nil, err
	}
	if withPolicy {
		if _, err := awsiam.NewRolePolicy(ctx, name+"-inline", &awsiam.RolePolicyArgs{
			Role:   role.Name,
			Policy: policy,
		}, pulumi.Parent(role)); err != nil {
			return nil, err
		}
	}
	return role, nil
}

type goFunctionArgs struct {
	role    pulumi.StringInput
	code    pulumi.Archive
	env     pulumi.StringMap
	memory  int
	timeout int
}

func newGoFunction(ctx *pulumi.Context, name string, a goFunctionArgs, opts []pulumi.ResourceOption) (*awslambda.Function, error) {
	return awslambda.NewFunction(ctx, name, &awslambda.FunctionArgs{
		Role:          a.role,
		Runtime:       pulumi.String("provided.al2023"),
		Handler:       pulumi.String(bootstrapFile),
		Architectures: pulumi.ToStringArray([]string{"arm64"}),
		Timeout:       pulumi.Int(a.timeout),
		MemorySize:    pulumi.Int(a.memory),
		Environment:   &awslambda.FunctionEnvironmentArgs{Variables: a.env},
		Code:          a.code,
	}, opts...)
}

// createHookFunctions builds the signup and signin triggers from the hooks artifact.
func createHookFunctions(ctx *pulumi.Context, name string, args BackendArgs, env pulumi.StringMap, table *roleTable, opts []pulumi.ResourceOption) (signup, signin *awslambda.Function, err error) {
	code, err := codeArchive(args.Artifacts.HooksDir, args.Artifacts.Include, args.Artifacts.Exclude)
	if err != nil {
		return nil, nil, err
	}
	var policy pulumi.StringOutput
	if table != nil {
		policy = table.arn.ApplyT(func(arn string) string { return policyDocument(tableStatement(arn)) }).(pulumi.StringOutput)
	}
	role, err := createFunctionRole(ctx, fmt.Sprintf("%s-hooks-role", name), policy, table != nil, opts)
	if err != nil {
		return nil, nil, err
	}
	signup, err = newGoFunction(ctx, fmt.Sprintf("%s-signup", name), goFunctionArgs{
		role: role.Arn, code: code, memory: hookMemoryMB, timeout: hookTimeoutSeconds,
		env: withEnv(env, map[string]string{"HANDLER": hooks.NameSignup}),
	}, opts)
	if err != nil {
		return nil, nil, err
	}
	signin, err = newGoFunction(ctx, fmt.Sprintf("%s-signin", name), goFunctionArgs{
		role: role.Arn, code: code, memory: hookMemoryMB, timeout: hookTimeoutSeconds,
		env: withEnv(env, map[string]string{"HANDLER": hooks.NameSignin}),
	}, opts)
	if err != nil {
		return nil, nil, err
	}
	return signup, signin, nil
}

func createUserPool(ctx *pulumi.Context, name string, args BackendArgs, signup, signin *awslambda.Function, opts []pulumi.ResourceOption) (*awscognito.UserPool, error) {
	return awscognito.NewUserPool(ctx, fmt.Sprintf("%s-userpool", name), &awscognito.UserPoolArgs{
		Name:                   pulumi.String(fmt.Sprintf("%s-users", args.AppName)),
		UsernameAttributes:     pulumi.ToStringArray([]string{"email"}),
		AutoVerifiedAttributes: pulumi.ToStringArray([]string{"email"}),
		AdminCreateUserConfig: &awscognito.UserPoolAdminCreateUserConfigArgs{
			AllowAdminCreateUserOnly: pulumi.Bool(false),
		},
		Schemas: awscognito.UserPoolSchemaArray{
			awscognito.UserPoolSchemaArgs{
				Name:              pulumi.String("given_name"),
				AttributeDataType: pulumi.String("String"),
				Mutable:           pulumi.Bool(true),
				Required:          pulumi.Bool(false),
			},
			awscognito.UserPoolSchemaArgs{
				Name:              pulumi.String("accountId"),
				AttributeDataType: pulumi.String("String"),
				Mutable:           pulumi.Bool(true),
				StringAttributeConstraints: &awscognito.UserPoolSchemaStringAttributeConstraintsArgs{
					MinLength: pulumi.String("36"),
					MaxLength: pulumi.String("36"),
				},
			},
		},
		PasswordPolicy: &awscognito.UserPoolPasswordPolicyArgs{
			MinimumLength:    pulumi.Int(8),
			RequireLowercase: pulumi.Bool(true),
			RequireNumbers:   pulumi.Bool(true),
			RequireUppercase: pulumi.Bool(false),
			RequireSymbols:   pulumi.Bool(false),
		},
		AccountRecoverySetting: &awscognito.UserPoolAccountRecoverySettingArgs{
			RecoveryMechanisms: awscognito.UserPoolAccountRecoverySettingRecoveryMechanismArray{
				awscognito.UserPoolAccountRecoverySettingRecoveryMechanismArgs{Name: pulumi.String("verified_email"), Priority: pulumi.Int(1)},
			},
		},
		LambdaConfig: &awscognito.UserPoolLambdaConfigArgs{
			PostConfirmation:   signup.Arn,
			PreTokenGeneration: signin.Arn,
		},
	}, opts...)
}

func identityRoleTrust(identityPoolID, amr string) string {
	return policyDocument(policyStatement{
		Effect:    "Allow",
		Principal: map[string]string{"Federated": "cognito-identity.amazonaws.com"},
		Action:    "sts:AssumeRoleWithWebIdentity",
		Condition: map[string]any{
			"StringEquals":           map[string]string{"cognito-identity.amazonaws.com:aud": identityPoolID},
			"ForAnyValue:StringLike": map[string]string{"cognito-identity.amazonaws.com:amr": amr},
		},
	})
}

func createIdentityRole(ctx *pulumi.Context, name string, poolID pulumi.IDOutput, amr string, opts []pulumi.ResourceOption) (*awsiam.Role, error) {
	return awsiam.NewRole(ctx, name, &awsiam.RoleArgs{
		AssumeRolePolicy: poolID.ApplyT(func(id pulumi.ID) string {
			return identityRoleTrust(string(id), amr)
		}).(pulumi.StringOutput),
		ManagedPolicyArns: pulumi.ToStringArray([]string{basicExecutionPolicyArn}),
	}, opts...)
}

// createFileBucket provisions the private upload bucket that authenticated
// identities read and write.
func createFileBucket(ctx *pulumi.Context, name string, retainOnDelete bool, usersRole *awsiam.Role, opts, retOpts []pulumi.ResourceOption) (*awss3.BucketV2, error) {
	bucket, err := awss3.NewBucketV2(ctx, fmt.Sprintf("%s-files", name), &awss3.BucketV2Args{
		ForceDestroy: pulumi.Bool(!retainOnDelete),
	}, retOpts...)
	if err != nil {
		return nil, err
	}
	child := append(append([]pulumi.ResourceOption{}, opts...), pulumi.Parent(bucket))
	if _, err := awss3.NewBucketServerSideEncryptionConfigurationV2(ctx, fmt.Sprintf("%s-files-sse", name), &awss3.BucketServerSideEncryptionConfigurationV2Args{
		Bucket: bucket.ID(),
		Rules: awss3.BucketServerSideEncryptionConfigurationV2RuleArray{
			awss3.BucketServerSideEncryptionConfigurationV2RuleArgs{
				ApplyServerSideEncryptionByDefault: &awss3.BucketServerSideEncryptionConfigurationV2RuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String("AES256"),
				},
			},
		},
	}, child...); err != nil {
		return nil, err
	}
	pab, err := awss3.NewBucketPublicAccessBlock(ctx, fmt.Sprintf("%s-files-pab", name), &awss3.BucketPublicAccessBlockArgs{
		Bucket:                bucket.ID(),
		BlockPublicAcls:       pulumi.Bool(true),
		BlockPublicPolicy:     pulumi.Bool(true),
		IgnorePublicAcls:      pulumi.Bool(true),
		RestrictPublicBuckets: pulumi.Bool(true),
	}, child...)
	if err != nil {
		return nil, err
	}
	if _, err := awss3.NewBucketCorsConfigurationV2(ctx, fmt.Sprintf("%s-files-cors", name), &awss3.BucketCorsConfigurationV2Args{
		Bucket: bucket.ID(),
		CorsRules: awss3.BucketCorsConfigurationV2CorsRuleArray{
			awss3.BucketCorsConfigurationV2CorsRuleArgs{
				AllowedMethods: pulumi.ToStringArray([]string{"GET", "POST", "PUT"}),
				AllowedOrigins: pulumi.ToStringArray([]string{"*"}),
				AllowedHeaders: pulumi.ToStringArray([]string{"*"}),
			},
		},
	}, child...); err != nil {
		return nil, err
	}
	if _, err := awss3.NewBucketLifecycleConfigurationV2(ctx, fmt.Sprintf("%s-files-lifecycle", name), &awss3.BucketLifecycleConfigurationV2Args{
		Bucket: bucket.ID(),
		Rules: awss3.BucketLifecycleConfigurationV2RuleArray{
			awss3.BucketLifecycleConfigurationV2RuleArgs{
				Id:     pulumi.String("tiering"),
				Status: pulumi.String("Enabled"),
				Filter: &awss3.BucketLifecycleConfigurationV2RuleFilterArgs{Prefix: pulumi.String("")},
				AbortIncompleteMultipartUpload: &awss3.BucketLifecycleConfigurationV2RuleAbortIncompleteMultipartUploadArgs{
					DaysAfterInitiation: pulumi.Int(90),
				},
				Expiration: &awss3.BucketLifecycleConfigurationV2RuleExpirationArgs{Days: pulumi.Int(365)},
				Transitions: awss3.BucketLifecycleConfigurationV2RuleTransitionArray{
					awss3.BucketLifecycleConfigurationV2RuleTransitionArgs{
						Days:         pulumi.Int(30),
						StorageClass: pulumi.String("STANDARD_IA"),
					},
				},
			},
		},
	}, child...); err != nil {
		return nil, err
	}
	tlsOnly := bucket.Arn.ApplyT(func(arn string) string {
		return policyDocument(policyStatement{
			Sid:       "EnforceTLS",
			Effect:    "Deny",
			Principal: "*",
			Action:    "s3:*",
			Resource:  []string{arn, arn + "/*"},
			Condition: map[string]any{"Bool": map[string]string{"aws:SecureTransport": "false"}},
		})
	}).(pulumi.StringOutput)
	if _, err := awss3.NewBucketPolicy(ctx, fmt.Sprintf("%s-files-policy", name), &awss3.BucketPolicyArgs{
		Bucket: bucket.ID(),
		Policy: tlsOnly,
	}, append(child, pulumi.DependsOn([]pulumi.Resource{pab}))...); err != nil {
		return nil, err
	}
	rw := bucket.Arn.ApplyT(func(arn string) string {
		return policyDocument(policyStatement{
			Effect: "Allow",
			Action: []string{
				"s3:GetObject*", "s3:GetBucket*", "s3:List*",
				"s3:DeleteObject*", "s3:PutObject", "s3:PutObjectLegalHold", "s3:PutObjectRetention",
				"s3:PutObjectTagging", "s3:PutObjectVersionTagging", "s3:Abort*",
			},
			Resource: []string{arn, arn + "/*"},
		})
	}).(pulumi.StringOutput)
	if _, err := awsiam.NewRolePolicy(ctx, fmt.Sprintf("%s-users-files", name), &awsiam.RolePolicyArgs{
		Role:   usersRole.Name,
		Policy: rw,
	}, pulumi.Parent(usersRole)); err != nil {
		return nil, err
	}
	return bucket, nil
}

// createCognito provisions the user pool with its triggers, the identity pool
// with its roles, the file bucket and the credential secret.
func createCognito(ctx *pulumi.Context, name string, args BackendArgs, env pulumi.StringMap, table *roleTable, opts, retOpts []pulumi.ResourceOption) (*cognitoResources, error) {
	signup, signin, err := createHookFunctions(ctx, name, args, env, table, opts)
	if err != nil {
		return nil, err
	}
	pool, err := createUserPool(ctx, name, args, signup, signin, retOpts)
	if err != nil {
		return nil, err
	}
	for suffix, fn := range map[string]*awslambda.Function{"signup": signup, "signin": signin} {
		if _, err := awslambda.NewPermission(ctx, fmt.Sprintf("%s-%s-invoke", name, suffix), &awslambda.PermissionArgs{
			Action:    pulumi.String("lambda:InvokeFunction"),
			Function:  fn.Name,
			Principal: pulumi.String("cognito-idp.amazonaws.com"),
			SourceArn: pool.Arn,
		}, pulumi.Parent(fn)); err != nil {
			return nil, err
		}
	}

	client, err := awscognito.NewUserPoolClient(ctx, fmt.Sprintf("%s-client", name), &awscognito.UserPoolClientArgs{
		Name:              pulumi.String(fmt.Sprintf("%s-client", args.AppName)),
		UserPoolId:        pool.ID(),
		ExplicitAuthFlows: pulumi.ToStringArray([]string{"ALLOW_USER_SRP_AUTH", "ALLOW_REFRESH_TOKEN_AUTH"}),
	}, opts...)
	if err != nil {
		return nil, err
	}

	idp, err := awscognito.NewIdentityPool(ctx, fmt.Sprintf("%s-identity", name), &awscognito.IdentityPoolArgs{
		IdentityPoolName:               pulumi.String(fmt.Sprintf("%s_identity", args.AppName)),
		AllowUnauthenticatedIdentities: pulumi.Bool(true),
		CognitoIdentityProviders: awscognito.IdentityPoolCognitoIdentityProviderArray{
			awscognito.IdentityPoolCognitoIdentityProviderArgs{
				ClientId:     client.ID(),
				ProviderName: pool.Endpoint,
			},
		},
	}, opts...)
	if err != nil {
		return nil, err
	}
	anon, err := createIdentityRole(ctx, fmt.Sprintf("%s-anonymous-role", name), idp.ID(), "unauthenticated", opts)
	if err != nil {
		return nil, err
	}
	users, err := createIdentityRole(ctx, fmt.Sprintf("%s-users-role", name), idp.ID(), "authenticated", opts)
	if err != nil {
		return nil, err
	}
	if _, err := awscognito.NewIdentityPoolRoleAttachment(ctx, fmt.Sprintf("%s-role-attachment", name), &awscognito.IdentityPoolRoleAttachmentArgs{
		IdentityPoolId: idp.ID(),
		Roles: pulumi.StringMap{
			"authenticated":   users.Arn,
			"unauthenticated": anon.Arn,
		},
		RoleMappings: awscognito.IdentityPoolRoleAttachmentRoleMappingArray{
			awscognito.IdentityPoolRoleAttachmentRoleMappingArgs{
				IdentityProvider:        pulumi.Sprintf("%s:%s", pool.Endpoint, client.ID()),
				Type:                    pulumi.String("Token"),
				AmbiguousRoleResolution: pulumi.String("AuthenticatedRole"),
			},
		},
	}, opts...); err != nil {
		return nil, err
	}

	bucket, err := createFileBucket(ctx, name, *args.RetainOnDelete, users, opts, retOpts)
	if err != nil {
		return nil, err
	}

	secret, err := awssm.NewSecret(ctx, fmt.Sprintf("%s-secret", name), &awssm.SecretArgs{
		Name:        pulumi.String(config.SecretNameFor(args.AppName)),
		Description: pulumi.String("Cognito pool administered by the auth API"),
	}, retOpts...)
	if err != nil {
		return nil, err
	}
	doc := pool.ID().ApplyT(func(id pulumi.ID) (string, error) {
		return secrets.Document(string(id))
	}).(pulumi.StringOutput)
	if _, err := awssm.NewSecretVersion(ctx, fmt.Sprintf("%s-secret-version", name), &awssm.SecretVersionArgs{
		SecretId:     secret.ID(),
		SecretString: doc,
	}, pulumi.Parent(secret)); err != nil {
		return nil, err
	}

	return &cognitoResources{
		outputs: CognitoOutputs{
			UserPoolID:       pool.ID().ToStringOutput(),
			UserPoolArn:      pool.Arn,
			UserPoolClientID: client.ID().ToStringOutput(),
			IdentityPoolID:   idp.ID().ToStringOutput(),
			FileBucket:       bucket.Bucket,
		},
		pool:      pool,
		clientID:  client.ID().ToStringOutput(),
		secretArn: secret.Arn,
		usersRole: users,
	}, nil
}
