package provider

import (
	"fmt"

	awsdynamodb "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/dynamodb"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

type roleTable struct {
	name pulumi.StringOutput
	arn  pulumi.StringOutput
}

// createRoleTable provisions the single-table store backing roleStore=dynamodb.
func createRoleTable(ctx *pulumi.Context, name string, retainOnDelete bool, opts []pulumi.ResourceOption) (*roleTable, error) {
	targs := &awsdynamodb.TableArgs{
		BillingMode: pulumi.String("PAY_PER_REQUEST"),
		// Only attributes participating in the primary index may be declared here.
		Attributes: awsdynamodb.TableAttributeArray{
			awsdynamodb.TableAttributeArgs{Name: pulumi.String("PK"), Type: pulumi.String("S")},
			awsdynamodb.TableAttributeArgs{Name: pulumi.String("SK"), Type: pulumi.String("S")},
		},
		HashKey:                   pulumi.String("PK"),
		RangeKey:                  pulumi.String("SK"),
		PointInTimeRecovery:       &awsdynamodb.TablePointInTimeRecoveryArgs{Enabled: pulumi.Bool(true)},
		ServerSideEncryption:      &awsdynamodb.TableServerSideEncryptionArgs{Enabled: pulumi.Bool(true)},
		DeletionProtectionEnabled: pulumi.Bool(retainOnDelete),
	}
	t, err := awsdynamodb.NewTable(ctx, fmt.Sprintf("%s-roles", name), targs, opts...)
	if err != nil {
		return nil, err
	}
	return &roleTable{name: t.Name, arn: t.Arn}, nil
}
