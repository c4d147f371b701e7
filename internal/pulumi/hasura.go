package provider

import (
	"encoding/json"
	"fmt"

	aws "github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	awscloudwatch "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	awsec2 "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	awsecs "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ecs"
	awsiam "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	awslb "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lb"
	awsrds "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/rds"
	awsroute53 "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/route53"
	awssm "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/secretsmanager"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	defaultHasuraImage = "hasura/graphql-engine:v2.11.1"
	hasuraPort         = 8080
	hasuraContainer    = "hasura"
	hasuraDBUser       = "hasura"
	hasuraDBName       = "hasura"
	vpcCidr            = "10.0.0.0/16"
)

type hasuraNetwork struct {
	vpc     *awsec2.Vpc
	public  []*awsec2.Subnet
	private []*awsec2.Subnet
}

func subnetIDs(subnets []*awsec2.Subnet) pulumi.StringArray {
	ids := pulumi.StringArray{}
	for _, s := range subnets {
		ids = append(ids, s.ID().ToStringOutput())
	}
	return ids
}

// createHasuraNetwork builds a two-AZ VPC with public subnets behind an
// internet gateway and private subnets egressing through one NAT gateway.
func createHasuraNetwork(ctx *pulumi.Context, name string, opts []pulumi.ResourceOption) (*hasuraNetwork, error) {
	azs, err := aws.GetAvailabilityZones(ctx, &aws.GetAvailabilityZonesArgs{State: pulumi.StringRef("available")})
	if err != nil {
		return nil, err
	}
	if len(azs.Names) < 2 {
		return nil, fmt.Errorf("hasura needs two availability zones, region has %d", len(azs.Names))
	}
	vpc, err := awsec2.NewVpc(ctx, fmt.Sprintf("%s-vpc", name), &awsec2.VpcArgs{
		CidrBlock:          pulumi.String(vpcCidr),
		EnableDnsHostnames: pulumi.Bool(true),
		EnableDnsSupport:   pulumi.Bool(true),
	}, opts...)
	if err != nil {
		return nil, err
	}
	child := append(append([]pulumi.ResourceOption{}, opts...), pulumi.Parent(vpc))
	igw, err := awsec2.NewInternetGateway(ctx, fmt.Sprintf("%s-igw", name), &awsec2.InternetGatewayArgs{VpcId: vpc.ID()}, child...)
	if err != nil {
		return nil, err
	}
	net := &hasuraNetwork{vpc: vpc}
	for i, az := range azs.Names[:2] {
		pub, err := awsec2.NewSubnet(ctx, fmt.Sprintf("%s-public-%d", name, i), &awsec2.SubnetArgs{
			VpcId:               vpc.ID(),
			CidrBlock:           pulumi.String(fmt.Sprintf("10.0.%d.0/24", i)),
			AvailabilityZone:    pulumi.String(az),
			MapPublicIpOnLaunch: pulumi.Bool(true),
		}, child...)
		if err != nil {
			return nil, err
		}
		priv, err := awsec2.NewSubnet(ctx, fmt.Sprintf("%s-private-%d", name, i), &awsec2.SubnetArgs{
			VpcId:            vpc.ID(),
			CidrBlock:        pulumi.String(fmt.Sprintf("10.0.%d.0/24", i+2)),
			AvailabilityZone: pulumi.String(az),
		}, child...)
		if err != nil {
			return nil, err
		}
		net.public = append(net.public, pub)
		net.private = append(net.private, priv)
	}
	eip, err := awsec2.NewEip(ctx, fmt.Sprintf("%s-nat-eip", name), &awsec2.EipArgs{Domain: pulumi.String("vpc")}, child...)
	if err != nil {
		return nil, err
	}
	nat, err := awsec2.NewNatGateway(ctx, fmt.Sprintf("%s-nat", name), &awsec2.NatGatewayArgs{
		AllocationId: eip.ID(),
		SubnetId:     net.public[0].ID(),
	}, append(child, pulumi.DependsOn([]pulumi.Resource{igw}))...)
	if err != nil {
		return nil, err
	}
	publicRT, err := awsec2.NewRouteTable(ctx, fmt.Sprintf("%s-public-rt", name), &awsec2.RouteTableArgs{
		VpcId:  vpc.ID(),
		Routes: awsec2.RouteTableRouteArray{awsec2.RouteTableRouteArgs{CidrBlock: pulumi.String("0.0.0.0/0"), GatewayId: igw.ID()}},
	}, child...)
	if err != nil {
		return nil, err
	}
	privateRT, err := awsec2.NewRouteTable(ctx, fmt.Sprintf("%s-private-rt", name), &awsec2.RouteTableArgs{
		VpcId:  vpc.ID(),
		Routes: awsec2.RouteTableRouteArray{awsec2.RouteTableRouteArgs{CidrBlock: pulumi.String("0.0.0.0/0"), NatGatewayId: nat.ID()}},
	}, child...)
	if err != nil {
		return nil, err
	}
	for i := range net.public {
		if _, err := awsec2.NewRouteTableAssociation(ctx, fmt.Sprintf("%s-public-rta-%d", name, i), &awsec2.RouteTableAssociationArgs{
			SubnetId: net.public[i].ID(), RouteTableId: publicRT.ID(),
		}, child...); err != nil {
			return nil, err
		}
		if _, err := awsec2.NewRouteTableAssociation(ctx, fmt.Sprintf("%s-private-rta-%d", name, i), &awsec2.RouteTableAssociationArgs{
			SubnetId: net.private[i].ID(), RouteTableId: privateRT.ID(),
		}, child...); err != nil {
			return nil, err
		}
	}
	return net, nil
}

var allEgress = awsec2.SecurityGroupEgressArray{
	awsec2.SecurityGroupEgressArgs{Protocol: pulumi.String("-1"), FromPort: pulumi.Int(0), ToPort: pulumi.Int(0), CidrBlocks: pulumi.ToStringArray([]string{"0.0.0.0/0"})},
}

func ingressFromGroup(port int, group pulumi.IDOutput) awsec2.SecurityGroupIngressArray {
	return awsec2.SecurityGroupIngressArray{
		awsec2.SecurityGroupIngressArgs{
			Protocol: pulumi.String("tcp"), FromPort: pulumi.Int(port), ToPort: pulumi.Int(port),
			SecurityGroups: pulumi.StringArray{group.ToStringOutput()},
		},
	}
}

// hasuraJWTConfig points the engine at the user pool's signing keys. Claims
// arrive as a JSON string under the Hasura claims key.
func hasuraJWTConfig(poolEndpoint string) (string, error) {
	b, err := json.Marshal(map[string]string{
		"type":          "RS256",
		"jwk_url":       fmt.Sprintf("https://%s/.well-known/jwks.json", poolEndpoint),
		"claims_format": "stringified_json",
	})
	return string(b), err
}

type containerKV struct {
	Name      string `json:"name"`
	Value     string `json:"value,omitempty"`
	ValueFrom string `json:"valueFrom,omitempty"`
}

// hasuraContainerDefinitions renders the task's single container. secretArns
// holds the database url, admin secret and JWT config secrets in that order.
func hasuraContainerDefinitions(image, remoteSchema, logGroup, region string, secretArns []string) (string, error) {
	env := []containerKV{
		{Name: "HASURA_GRAPHQL_ENABLE_CONSOLE", Value: "true"},
		{Name: "HASURA_GRAPHQL_PG_CONNECTIONS", Value: "100"},
		{Name: "HASURA_GRAPHQL_LOG_LEVEL", Value: "debug"},
		{Name: "HASURA_GRAPHQL_UNAUTHORIZED_ROLE", Value: "guest"},
	}
	if remoteSchema != "" {
		env = append(env, containerKV{Name: "HASURA_GQL_REMOTE_SCHEMA", Value: remoteSchema})
	}
	defs := []map[string]any{{
		"name":         hasuraContainer,
		"image":        image,
		"essential":    true,
		"portMappings": []map[string]any{{"containerPort": hasuraPort, "protocol": "tcp"}},
		"environment":  env,
		"secrets": []containerKV{
			{Name: "HASURA_GRAPHQL_DATABASE_URL", ValueFrom: secretArns[0]},
			{Name: "HASURA_GRAPHQL_ADMIN_SECRET", ValueFrom: secretArns[1]},
			{Name: "HASURA_GRAPHQL_JWT_SECRET", ValueFrom: secretArns[2]},
		},
		"logConfiguration": map[string]any{
			"logDriver": "awslogs",
			"options": map[string]string{
				"awslogs-group":         logGroup,
				"awslogs-region":        region,
				"awslogs-stream-prefix": hasuraContainer,
			},
		},
	}}
	b, err := json.Marshal(defs)
	return string(b), err
}

func newSecretWithValue(ctx *pulumi.Context, name, description string, value pulumi.StringPtrInput, opts []pulumi.ResourceOption) (*awssm.Secret, error) {
	s, err := awssm.NewSecret(ctx, name, &awssm.SecretArgs{Description: pulumi.String(description)}, opts...)
	if err != nil {
		return nil, err
	}
	if value != nil {
		if _, err := awssm.NewSecretVersion(ctx, name+"-version", &awssm.SecretVersionArgs{
			SecretId:     s.ID(),
			SecretString: value,
		}, pulumi.Parent(s)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// createHasura runs the GraphQL engine on Fargate behind an HTTPS load
// balancer at hasura.hostname, backed by a private Postgres instance.
func createHasura(ctx *pulumi.Context, name string, args BackendArgs, cog *cognitoResources, opts, retOpts []pulumi.ResourceOption) (pulumi.StringOutput, error) {
	cfg := args.Hasura
	zoneID := *args.HostedZoneID
	multiAz := *args.MultiAz
	hname := name + "-hasura"

	net, err := createHasuraNetwork(ctx, hname, opts)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	albSG, err := awsec2.NewSecurityGroup(ctx, hname+"-alb-sg", &awsec2.SecurityGroupArgs{
		VpcId: net.vpc.ID(),
		Ingress: awsec2.SecurityGroupIngressArray{
			awsec2.SecurityGroupIngressArgs{Protocol: pulumi.String("tcp"), FromPort: pulumi.Int(443), ToPort: pulumi.Int(443), CidrBlocks: pulumi.ToStringArray([]string{"0.0.0.0/0"})},
			awsec2.SecurityGroupIngressArgs{Protocol: pulumi.String("tcp"), FromPort: pulumi.Int(80), ToPort: pulumi.Int(80), CidrBlocks: pulumi.ToStringArray([]string{"0.0.0.0/0"})},
		},
		Egress: allEgress,
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	serviceSG, err := awsec2.NewSecurityGroup(ctx, hname+"-service-sg", &awsec2.SecurityGroupArgs{
		VpcId:   net.vpc.ID(),
		Ingress: ingressFromGroup(hasuraPort, albSG.ID()),
		Egress:  allEgress,
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	dbSG, err := awsec2.NewSecurityGroup(ctx, hname+"-db-sg", &awsec2.SecurityGroupArgs{
		VpcId:   net.vpc.ID(),
		Ingress: ingressFromGroup(5432, serviceSG.ID()),
		Egress:  allEgress,
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}

	db, err := createHasuraDatabase(ctx, hname, args, net, dbSG, opts, retOpts)
	if err != nil {
		return pulumi.StringOutput{}, err
	}

	var dbURL pulumi.StringPtrInput
	if cfg.DatabasePassword != nil {
		dbURL = pulumi.ToSecret(pulumi.Sprintf("postgres://%s:%s@%s:%d/%s", hasuraDBUser, *cfg.DatabasePassword, db.Address, db.Port, hasuraDBName)).(pulumi.StringOutput)
	}
	dbURLSecret, err := newSecretWithValue(ctx, hname+"-database-url", "Hasura database URL", dbURL, retOpts)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	var admin pulumi.StringPtrInput
	if args.HasuraAdminSecret != nil {
		admin = pulumi.ToSecret(pulumi.String(*args.HasuraAdminSecret)).(pulumi.StringOutput)
	}
	adminSecret, err := newSecretWithValue(ctx, hname+"-admin", "Hasura admin secret", admin, retOpts)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	jwt := cog.pool.Endpoint.ApplyT(hasuraJWTConfig).(pulumi.StringOutput)
	jwtSecret, err := newSecretWithValue(ctx, hname+"-jwt", "Hasura JWT config", jwt, retOpts)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	secretArns := []pulumi.StringOutput{dbURLSecret.Arn, adminSecret.Arn, jwtSecret.Arn}

	logGroup, err := awscloudwatch.NewLogGroup(ctx, hname+"-logs", &awscloudwatch.LogGroupArgs{
		RetentionInDays: pulumi.Int(30),
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	execRole, err := awsiam.NewRole(ctx, hname+"-exec-role", &awsiam.RoleArgs{
		AssumeRolePolicy:  pulumi.String(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":["ecs-tasks.amazonaws.com"]},"Action":["sts:AssumeRole"]}]}`),
		ManagedPolicyArns: pulumi.ToStringArray([]string{"arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"}),
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	readSecrets := pulumi.All(outputsToInterfaces(toOutputs(secretArns))...).ApplyT(func(xs []interface{}) string {
		arns := make([]string, 0, len(xs))
		for _, x := range xs {
			arns = append(arns, x.(string))
		}
		return policyDocument(policyStatement{Effect: "Allow", Action: "secretsmanager:GetSecretValue", Resource: arns})
	}).(pulumi.StringOutput)
	if _, err := awsiam.NewRolePolicy(ctx, hname+"-exec-secrets", &awsiam.RolePolicyArgs{
		Role: execRole.Name, Policy: readSecrets,
	}, pulumi.Parent(execRole)); err != nil {
		return pulumi.StringOutput{}, err
	}

	region, err := aws.GetRegion(ctx, nil)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	image := valueOrDefault(cfg.Image, defaultHasuraImage)
	remote := valueOrDefault(cfg.RemoteSchema, "")
	defsInputs := append(toOutputs(secretArns), logGroup.Name)
	defs := pulumi.All(outputsToInterfaces(defsInputs)...).ApplyT(func(xs []interface{}) (string, error) {
		return hasuraContainerDefinitions(image, remote, xs[3].(string), region.Name,
			[]string{xs[0].(string), xs[1].(string), xs[2].(string)})
	}).(pulumi.StringOutput)

	cluster, err := awsecs.NewCluster(ctx, hname+"-cluster", &awsecs.ClusterArgs{}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	task, err := awsecs.NewTaskDefinition(ctx, hname+"-task", &awsecs.TaskDefinitionArgs{
		Family:                  pulumi.String(fmt.Sprintf("%s-hasura", args.AppName)),
		Cpu:                     pulumi.String("256"),
		Memory:                  pulumi.String("512"),
		NetworkMode:             pulumi.String("awsvpc"),
		RequiresCompatibilities: pulumi.ToStringArray([]string{"FARGATE"}),
		ExecutionRoleArn:        execRole.Arn,
		ContainerDefinitions:    defs,
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}

	alb, err := awslb.NewLoadBalancer(ctx, hname+"-alb", &awslb.LoadBalancerArgs{
		LoadBalancerType:        pulumi.String("application"),
		Internal:                pulumi.Bool(false),
		SecurityGroups:          pulumi.StringArray{albSG.ID().ToStringOutput()},
		Subnets:                 subnetIDs(net.public),
		DropInvalidHeaderFields: pulumi.Bool(true),
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	tg, err := awslb.NewTargetGroup(ctx, hname+"-tg", &awslb.TargetGroupArgs{
		Port:       pulumi.Int(hasuraPort),
		Protocol:   pulumi.String("HTTP"),
		TargetType: pulumi.String("ip"),
		VpcId:      net.vpc.ID(),
		HealthCheck: &awslb.TargetGroupHealthCheckArgs{
			Enabled: pulumi.Bool(true),
			Path:    pulumi.String("/healthz"),
			Matcher: pulumi.String("200"),
		},
	}, opts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	certArn, err := createValidatedCertificate(ctx, hname, cfg.Hostname, zoneID, opts)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	https, err := awslb.NewListener(ctx, hname+"-https", &awslb.ListenerArgs{
		LoadBalancerArn: alb.Arn,
		Port:            pulumi.Int(443),
		Protocol:        pulumi.String("HTTPS"),
		CertificateArn:  certArn,
		DefaultActions: awslb.ListenerDefaultActionArray{
			awslb.ListenerDefaultActionArgs{Type: pulumi.String("forward"), TargetGroupArn: tg.Arn},
		},
	}, pulumi.Parent(alb))
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	if _, err := awslb.NewListener(ctx, hname+"-http", &awslb.ListenerArgs{
		LoadBalancerArn: alb.Arn,
		Port:            pulumi.Int(80),
		Protocol:        pulumi.String("HTTP"),
		DefaultActions: awslb.ListenerDefaultActionArray{
			awslb.ListenerDefaultActionArgs{
				Type: pulumi.String("redirect"),
				Redirect: &awslb.ListenerDefaultActionRedirectArgs{
					Port: pulumi.String("443"), Protocol: pulumi.String("HTTPS"), StatusCode: pulumi.String("HTTP_301"),
				},
			},
		},
	}, pulumi.Parent(alb)); err != nil {
		return pulumi.StringOutput{}, err
	}

	desired := 1
	if multiAz {
		desired = 2
	}
	if _, err := awsecs.NewService(ctx, hname+"-service", &awsecs.ServiceArgs{
		Cluster:        cluster.Arn,
		TaskDefinition: task.Arn,
		DesiredCount:   pulumi.Int(desired),
		LaunchType:     pulumi.String("FARGATE"),
		NetworkConfiguration: &awsecs.ServiceNetworkConfigurationArgs{
			Subnets:        subnetIDs(net.private),
			SecurityGroups: pulumi.StringArray{serviceSG.ID().ToStringOutput()},
			AssignPublicIp: pulumi.Bool(false),
		},
		LoadBalancers: awsecs.ServiceLoadBalancerArray{
			awsecs.ServiceLoadBalancerArgs{
				TargetGroupArn: tg.Arn,
				ContainerName:  pulumi.String(hasuraContainer),
				ContainerPort:  pulumi.Int(hasuraPort),
			},
		},
	}, append(opts, pulumi.DependsOn([]pulumi.Resource{https}))...); err != nil {
		return pulumi.StringOutput{}, err
	}

	if _, err := awsroute53.NewRecord(ctx, hname+"-alias", &awsroute53.RecordArgs{
		ZoneId: pulumi.String(zoneID),
		Name:   pulumi.String(cfg.Hostname),
		Type:   pulumi.String("A"),
		Aliases: awsroute53.RecordAliasArray{
			awsroute53.RecordAliasArgs{Name: alb.DnsName, ZoneId: alb.ZoneId, EvaluateTargetHealth: pulumi.Bool(true)},
		},
	}, pulumi.Parent(alb)); err != nil {
		return pulumi.StringOutput{}, err
	}
	return pulumi.Sprintf("https://%s", cfg.Hostname), nil
}

func createHasuraDatabase(ctx *pulumi.Context, name string, args BackendArgs, net *hasuraNetwork, sg *awsec2.SecurityGroup, opts, retOpts []pulumi.ResourceOption) (*awsrds.Instance, error) {
	retain := *args.RetainOnDelete
	subnets, err := awsrds.NewSubnetGroup(ctx, name+"-db-subnets", &awsrds.SubnetGroupArgs{
		SubnetIds: subnetIDs(net.private),
	}, opts...)
	if err != nil {
		return nil, err
	}
	monitoring, err := awsiam.NewRole(ctx, name+"-db-monitoring", &awsiam.RoleArgs{
		AssumeRolePolicy:  pulumi.String(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":["monitoring.rds.amazonaws.com"]},"Action":["sts:AssumeRole"]}]}`),
		ManagedPolicyArns: pulumi.ToStringArray([]string{"arn:aws:iam::aws:policy/service-role/AmazonRDSEnhancedMonitoringRole"}),
	}, opts...)
	if err != nil {
		return nil, err
	}
	iargs := &awsrds.InstanceArgs{
		Engine:                     pulumi.String("postgres"),
		InstanceClass:              pulumi.String("db.t3.micro"),
		AllocatedStorage:           pulumi.Int(20),
		MaxAllocatedStorage:        pulumi.Int(100),
		StorageEncrypted:           pulumi.Bool(true),
		MultiAz:                    pulumi.Bool(*args.MultiAz),
		DbName:                     pulumi.String(hasuraDBName),
		Username:                   pulumi.String(hasuraDBUser),
		DbSubnetGroupName:          subnets.Name,
		VpcSecurityGroupIds:        pulumi.StringArray{sg.ID().ToStringOutput()},
		PerformanceInsightsEnabled: pulumi.Bool(true),
		MonitoringInterval:         pulumi.Int(60),
		MonitoringRoleArn:          monitoring.Arn,
		DeletionProtection:         pulumi.Bool(retain),
		SkipFinalSnapshot:          pulumi.Bool(!retain),
	}
	if retain {
		iargs.FinalSnapshotIdentifier = pulumi.String(fmt.Sprintf("%s-hasura-final", args.AppName))
	}
	if pw := args.Hasura.DatabasePassword; pw != nil {
		iargs.Password = pulumi.ToSecret(pulumi.String(*pw)).(pulumi.StringOutput)
	} else {
		iargs.ManageMasterUserPassword = pulumi.Bool(true)
	}
	return awsrds.NewInstance(ctx, name+"-db", iargs, retOpts...)
}
