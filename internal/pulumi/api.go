package provider

import (
	"fmt"
	"strings"

	awsacm "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/acm"
	awsapigw "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/apigateway"
	awsiam "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	awslambda "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	awsroute53 "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/route53"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	stageName    = "prod"
	authAPIRoute = "authApi"
)

// routeResources are the resources a deployment depends on.
type routeResources []pulumi.Resource

// addLambdaRoute wires method -> AWS_PROXY integration -> fn on resource and
// grants API Gateway permission to invoke fn.
func addLambdaRoute(ctx *pulumi.Context, name string, api *awsapigw.RestApi, res *awsapigw.Resource, method string, fn *awslambda.Function, opts []pulumi.ResourceOption) (routeResources, error) {
	m, err := awsapigw.NewMethod(ctx, name+"-method", &awsapigw.MethodArgs{
		RestApi:       api.ID(),
		ResourceId:    res.ID(),
		HttpMethod:    pulumi.String(method),
		Authorization: pulumi.String("NONE"),
	}, opts...)
	if err != nil {
		return nil, err
	}
	integ, err := awsapigw.NewIntegration(ctx, name+"-integration", &awsapigw.IntegrationArgs{
		RestApi:               api.ID(),
		ResourceId:            res.ID(),
		HttpMethod:            m.HttpMethod,
		IntegrationHttpMethod: pulumi.String("POST"),
		Type:                  pulumi.String("AWS_PROXY"),
		Uri:                   fn.InvokeArn,
	}, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := awslambda.NewPermission(ctx, name+"-invoke", &awslambda.PermissionArgs{
		Action:    pulumi.String("lambda:InvokeFunction"),
		Function:  fn.Name,
		Principal: pulumi.String("apigateway.amazonaws.com"),
		SourceArn: pulumi.Sprintf("%s/*/*", api.ExecutionArn),
	}, pulumi.Parent(fn)); err != nil {
		return nil, err
	}
	return routeResources{m, integ}, nil
}

// addCorsPreflight answers OPTIONS on res with a mock integration allowing any origin.
func addCorsPreflight(ctx *pulumi.Context, name string, api *awsapigw.RestApi, res *awsapigw.Resource, allowMethods string, opts []pulumi.ResourceOption) (routeResources, error) {
	m, err := awsapigw.NewMethod(ctx, name+"-options", &awsapigw.MethodArgs{
		RestApi:       api.ID(),
		ResourceId:    res.ID(),
		HttpMethod:    pulumi.String("OPTIONS"),
		Authorization: pulumi.String("NONE"),
	}, opts...)
	if err != nil {
		return nil, err
	}
	integ, err := awsapigw.NewIntegration(ctx, name+"-options-integration", &awsapigw.IntegrationArgs{
		RestApi:          api.ID(),
		ResourceId:       res.ID(),
		HttpMethod:       m.HttpMethod,
		Type:             pulumi.String("MOCK"),
		RequestTemplates: pulumi.StringMap{"application/json": pulumi.String(`{"statusCode": 204}`)},
	}, opts...)
	if err != nil {
		return nil, err
	}
	mr, err := awsapigw.NewMethodResponse(ctx, name+"-options-response", &awsapigw.MethodResponseArgs{
		RestApi:    api.ID(),
		ResourceId: res.ID(),
		HttpMethod: m.HttpMethod,
		StatusCode: pulumi.String("204"),
		ResponseParameters: pulumi.BoolMap{
			"method.response.header.Access-Control-Allow-Headers": pulumi.Bool(true),
			"method.response.header.Access-Control-Allow-Methods": pulumi.Bool(true),
			"method.response.header.Access-Control-Allow-Origin":  pulumi.Bool(true),
		},
	}, opts...)
	if err != nil {
		return nil, err
	}
	ir, err := awsapigw.NewIntegrationResponse(ctx, name+"-options-integration-response", &awsapigw.IntegrationResponseArgs{
		RestApi:    api.ID(),
		ResourceId: res.ID(),
		HttpMethod: m.HttpMethod,
		StatusCode: mr.StatusCode,
		ResponseParameters: pulumi.StringMap{
			"method.response.header.Access-Control-Allow-Headers": pulumi.String("'Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,X-Amz-User-Agent'"),
			"method.response.header.Access-Control-Allow-Methods": pulumi.String("'" + allowMethods + "'"),
			"method.response.header.Access-Control-Allow-Origin":  pulumi.String("'*'"),
		},
	}, append(opts, pulumi.DependsOn([]pulumi.Resource{integ}))...)
	if err != nil {
		return nil, err
	}
	return routeResources{m, integ, mr, ir}, nil
}

// createApiLogging grants API Gateway the account-level CloudWatch role stage logging needs.
func createApiLogging(ctx *pulumi.Context, name string, opts []pulumi.ResourceOption) (*awsapigw.Account, error) {
	role, err := awsiam.NewRole(ctx, fmt.Sprintf("%s-apigw-logs-role", name), &awsiam.RoleArgs{
		AssumeRolePolicy:  pulumi.String(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":["apigateway.amazonaws.com"]},"Action":["sts:AssumeRole"]}]}`),
		ManagedPolicyArns: pulumi.ToStringArray([]string{"arn:aws:iam::aws:policy/service-role/AmazonAPIGatewayPushToCloudWatchLogs"}),
	}, opts...)
	if err != nil {
		return nil, err
	}
	return awsapigw.NewAccount(ctx, fmt.Sprintf("%s-apigw-account", name), &awsapigw.AccountArgs{
		CloudwatchRoleArn: role.Arn,
	}, opts...)
}

// createRestApi exposes each auth function at POST authApi/<name> and gql at
// ANY gql, deploys a logged and traced stage, and optionally maps it to the
// custom hostname.
func createRestApi(ctx *pulumi.Context, name string, args BackendArgs, fns *backendFunctions, opts []pulumi.ResourceOption) (ApiOutputs, error) {
	var out ApiOutputs
	api, err := awsapigw.NewRestApi(ctx, fmt.Sprintf("%s-api", name), &awsapigw.RestApiArgs{
		Name:        pulumi.String(fmt.Sprintf("%s-lambdas", args.AppName)),
		Description: pulumi.String("Auth API and gql route"),
	}, opts...)
	if err != nil {
		return out, err
	}
	apiOpts := append(append([]pulumi.ResourceOption{}, opts...), pulumi.Parent(api))

	deps := routeResources{}
	authRes, err := awsapigw.NewResource(ctx, fmt.Sprintf("%s-%s", name, authAPIRoute), &awsapigw.ResourceArgs{
		RestApi:  api.ID(),
		ParentId: api.RootResourceId,
		PathPart: pulumi.String(authAPIRoute),
	}, apiOpts...)
	if err != nil {
		return out, err
	}
	for _, handler := range fns.sortedAuthNames() {
		rname := fmt.Sprintf("%s-%s-%s", name, authAPIRoute, handler)
		res, err := awsapigw.NewResource(ctx, rname, &awsapigw.ResourceArgs{
			RestApi:  api.ID(),
			ParentId: authRes.ID(),
			PathPart: pulumi.String(handler),
		}, apiOpts...)
		if err != nil {
			return out, err
		}
		r, err := addLambdaRoute(ctx, rname, api, res, "POST", fns.auth[handler], apiOpts)
		if err != nil {
			return out, err
		}
		c, err := addCorsPreflight(ctx, rname, api, res, "OPTIONS,POST", apiOpts)
		if err != nil {
			return out, err
		}
		deps = append(append(deps, r...), c...)
	}

	gname := fmt.Sprintf("%s-%s", name, gqlRoute)
	gqlRes, err := awsapigw.NewResource(ctx, gname, &awsapigw.ResourceArgs{
		RestApi:  api.ID(),
		ParentId: api.RootResourceId,
		PathPart: pulumi.String(gqlRoute),
	}, apiOpts...)
	if err != nil {
		return out, err
	}
	r, err := addLambdaRoute(ctx, gname, api, gqlRes, "ANY", fns.gql, apiOpts)
	if err != nil {
		return out, err
	}
	deps = append(deps, r...)

	routes := append([]string{gqlRoute}, fns.sortedAuthNames()...)
	deployment, err := awsapigw.NewDeployment(ctx, fmt.Sprintf("%s-deployment", name), &awsapigw.DeploymentArgs{
		RestApi:  api.ID(),
		Triggers: pulumi.StringMap{"routes": pulumi.String(strings.Join(routes, ","))},
	}, append(apiOpts, pulumi.DependsOn(deps))...)
	if err != nil {
		return out, err
	}
	cert, err := awsapigw.NewClientCertificate(ctx, fmt.Sprintf("%s-client-cert", name), &awsapigw.ClientCertificateArgs{
		Description: pulumi.String(fmt.Sprintf("%s backend client certificate", args.AppName)),
	}, opts...)
	if err != nil {
		return out, err
	}
	account, err := createApiLogging(ctx, name, opts)
	if err != nil {
		return out, err
	}
	stage, err := awsapigw.NewStage(ctx, fmt.Sprintf("%s-stage", name), &awsapigw.StageArgs{
		RestApi:             api.ID(),
		Deployment:          deployment.ID(),
		StageName:           pulumi.String(stageName),
		XrayTracingEnabled:  pulumi.Bool(true),
		ClientCertificateId: cert.ID(),
	}, append(apiOpts, pulumi.DependsOn([]pulumi.Resource{account}))...)
	if err != nil {
		return out, err
	}
	if _, err := awsapigw.NewMethodSettings(ctx, fmt.Sprintf("%s-stage-settings", name), &awsapigw.MethodSettingsArgs{
		RestApi:    api.ID(),
		StageName:  stage.StageName,
		MethodPath: pulumi.String("*/*"),
		Settings: &awsapigw.MethodSettingsSettingsArgs{
			LoggingLevel:     pulumi.String("INFO"),
			DataTraceEnabled: pulumi.Bool(true),
			MetricsEnabled:   pulumi.Bool(true),
		},
	}, apiOpts...); err != nil {
		return out, err
	}

	out.RestApiID = api.ID().ToStringOutput()
	out.InvokeURL = stage.InvokeUrl
	out.RoleArn = fns.role.Arn
	out.CustomURL = absentString()

	if args.LambdasHostname != nil {
		host := *args.LambdasHostname
		dn, err := createCustomDomain(ctx, name, host, *args.HostedZoneID, opts)
		if err != nil {
			return out, err
		}
		if _, err := awsapigw.NewBasePathMapping(ctx, fmt.Sprintf("%s-base-path", name), &awsapigw.BasePathMappingArgs{
			RestApi:    api.ID(),
			StageName:  stage.StageName,
			DomainName: dn.DomainName,
		}, pulumi.Parent(dn)); err != nil {
			return out, err
		}
		out.CustomURL = pulumi.Sprintf("https://%s", dn.DomainName).ToStringPtrOutput()
	}
	return out, nil
}

// createValidatedCertificate issues an ACM certificate for host and completes
// DNS validation in the hosted zone.
func createValidatedCertificate(ctx *pulumi.Context, name, host, zoneID string, opts []pulumi.ResourceOption) (pulumi.StringOutput, error) {
	cert, err := awsacm.NewCertificate(ctx, name+"-cert", &awsacm.CertificateArgs{
		DomainName:       pulumi.String(host),
		ValidationMethod: pulumi.String("DNS"),
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	dvo := cert.DomainValidationOptions.Index(pulumi.Int(0))
	rec, err := awsroute53.NewRecord(ctx, name+"-cert-validation", &awsroute53.RecordArgs{
		ZoneId:         pulumi.String(zoneID),
		Name:           dvo.ResourceRecordName().Elem(),
		Type:           dvo.ResourceRecordType().Elem(),
		Records:        pulumi.StringArray{dvo.ResourceRecordValue().Elem()},
		Ttl:            pulumi.Int(60),
		AllowOverwrite: pulumi.Bool(true),
	}, pulumi.Parent(cert))
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	v, err := awsacm.NewCertificateValidation(ctx, name+"-cert-validated", &awsacm.CertificateValidationArgs{
		CertificateArn:        cert.Arn,
		ValidationRecordFqdns: pulumi.StringArray{rec.Fqdn},
	}, pulumi.Parent(cert))
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	return v.CertificateArn, nil
}

func createCustomDomain(ctx *pulumi.Context, name, host, zoneID string, opts []pulumi.ResourceOption) (*awsapigw.DomainName, error) {
	certArn, err := createValidatedCertificate(ctx, name+"-api", host, zoneID, opts)
	if err != nil {
		return nil, err
	}
	dn, err := awsapigw.NewDomainName(ctx, fmt.Sprintf("%s-domain", name), &awsapigw.DomainNameArgs{
		DomainName:             pulumi.String(host),
		RegionalCertificateArn: certArn,
		EndpointConfiguration:  &awsapigw.DomainNameEndpointConfigurationArgs{Types: pulumi.String("REGIONAL")},
		SecurityPolicy:         pulumi.String("TLS_1_2"),
	}, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := awsroute53.NewRecord(ctx, fmt.Sprintf("%s-domain-alias", name), &awsroute53.RecordArgs{
		ZoneId: pulumi.String(zoneID),
		Name:   pulumi.String(host),
		Type:   pulumi.String("A"),
		Aliases: awsroute53.RecordAliasArray{
			awsroute53.RecordAliasArgs{
				Name:                 dn.RegionalDomainName,
				ZoneId:               dn.RegionalZoneId,
				EvaluateTargetHealth: pulumi.Bool(false),
			},
		},
	}, pulumi.Parent(dn)); err != nil {
		return nil, err
	}
	return dn, nil
}
