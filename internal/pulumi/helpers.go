package provider

import (
	"encoding/json"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const lambdaAssumeRolePolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":["lambda.amazonaws.com"]},"Action":["sts:AssumeRole"]}]}`

const basicExecutionPolicyArn = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"

type policyStatement struct {
	Sid       string         `json:"Sid,omitempty"`
	Effect    string         `json:"Effect"`
	Principal any            `json:"Principal,omitempty"`
	Action    any            `json:"Action"`
	Resource  any            `json:"Resource,omitempty"`
	Condition map[string]any `json:"Condition,omitempty"`
}

func policyDocument(stmts ...policyStatement) string {
	b, _ := json.Marshal(map[string]any{"Version": "2012-10-17", "Statement": stmts})
	return string(b)
}

// buildChildOptions returns options for child resources (parented to comp) and
// a variant that also retains the resource on delete when requested.
func buildChildOptions(comp pulumi.Resource, opts []pulumi.ResourceOption, retainOnDelete bool) (childOpts []pulumi.ResourceOption, retainOpts []pulumi.ResourceOption) {
	childOpts = append([]pulumi.ResourceOption{}, opts...)
	childOpts = append(childOpts, pulumi.Parent(comp))
	retainOpts = append([]pulumi.ResourceOption{}, childOpts...)
	if retainOnDelete {
		retainOpts = append(retainOpts, pulumi.RetainOnDelete(true))
	}
	return childOpts, retainOpts
}

// absentString is a resolved output for an optional string that has no value.
func absentString() pulumi.StringPtrOutput {
	return pulumi.ToOutput((*string)(nil)).(pulumi.StringPtrOutput)
}

func toOutputs(ins []pulumi.StringOutput) []pulumi.Output {
	outs := make([]pulumi.Output, 0, len(ins))
	for _, in := range ins {
		outs = append(outs, in)
	}
	return outs
}

// outputsToInterfaces converts a slice of pulumi.Output to a slice of interface{}
// suitable for passing to variadic functions like pulumi.All.
func outputsToInterfaces(ins []pulumi.Output) []interface{} {
	out := make([]interface{}, len(ins))
	for i, v := range ins {
		out[i] = v
	}
	return out
}

func valueOrDefault[T ~string](ptr *T, def T) string {
	if ptr == nil {
		return string(def)
	}
	return string(*ptr)
}
