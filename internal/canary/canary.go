// Package canary runs post-deploy smoke checks: Lambda invocations with an
// expected HTTP status, and IAM policy simulations with an expected decision.
package canary

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"gopkg.in/yaml.v3"

	"github.com/mikecbrant/distro-backend/internal/utils"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

//go:embed assets/*.yaml
var assetFS embed.FS

// Case invokes a function and checks the proxy response status and,
// when ExpectBody is set, the JSON body.
type Case struct {
	Name         string         `yaml:"name"`
	Function     string         `yaml:"function"`
	Payload      map[string]any `yaml:"payload"`
	ExpectStatus int            `yaml:"expectStatus"`
	ExpectBody   string         `yaml:"expectBody"`
}

// Permission simulates actions for a role and checks the decision.
type Permission struct {
	Role     string   `yaml:"role"`
	Actions  []string `yaml:"actions"`
	Resource string   `yaml:"resource"`
	// Expect is allowed or denied.
	Expect string `yaml:"expect"`
}

// Doc is the canary file format.
type Doc struct {
	Cases       []Case       `yaml:"cases"`
	Permissions []Permission `yaml:"permissions"`
}

// LambdaAPI is the Invoke slice of the Lambda client.
type LambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// IAMAPI is the SimulatePrincipalPolicy slice of the IAM client.
type IAMAPI interface {
	SimulatePrincipalPolicy(ctx context.Context, in *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error)
}

// Runner executes canaries.
type Runner struct {
	lambda LambdaAPI
	iam    IAMAPI
	logger logging.Logger
}

// NewRunner returns a Runner over the given clients.
func NewRunner(l LambdaAPI, i IAMAPI, logger logging.Logger) *Runner {
	return &Runner{lambda: l, iam: i, logger: logging.OrNop(logger)}
}

// Parse decodes a canary document after substituting ${VAR} placeholders from
// vars. An unresolved placeholder is an error.
func Parse(b []byte, src string, vars map[string]string) (Doc, error) {
	var missing []string
	text := os.Expand(string(b), func(k string) string {
		v, ok := vars[k]
		if !ok {
			missing = append(missing, k)
		}
		return v
	})
	if len(missing) > 0 {
		return Doc{}, fmt.Errorf("canary file %s references undefined variables: %s", src, strings.Join(missing, ", "))
	}
	var doc Doc
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return Doc{}, fmt.Errorf("invalid canary YAML %s: %w", src, err)
	}
	return doc, nil
}

// Load merges the embedded base canaries with an optional consumer file. A
// consumer path that does not exist is ignored.
func Load(consumerPath string, vars map[string]string) (Doc, error) {
	b, err := assetFS.ReadFile("assets/base.yaml")
	if err != nil {
		return Doc{}, err
	}
	all, err := Parse(b, "base.yaml", vars)
	if err != nil {
		return Doc{}, err
	}
	if consumerPath == "" {
		return all, nil
	}
	cb, err := os.ReadFile(consumerPath)
	if os.IsNotExist(err) {
		return all, nil
	}
	if err != nil {
		return Doc{}, err
	}
	doc, err := Parse(cb, consumerPath, vars)
	if err != nil {
		return Doc{}, err
	}
	all.Cases = append(doc.Cases, all.Cases...)
	all.Permissions = append(doc.Permissions, all.Permissions...)
	return all, nil
}

// Run executes every case then every permission check, stopping at the first failure.
func (r *Runner) Run(ctx context.Context, doc Doc) error {
	for i, c := range doc.Cases {
		if err := r.invoke(ctx, c); err != nil {
			return fmt.Errorf("canary #%d (%s): %w", i+1, c.Name, err)
		}
	}
	for i, p := range doc.Permissions {
		if err := r.simulate(ctx, p); err != nil {
			return fmt.Errorf("permission canary #%d (%s): %w", i+1, p.Role, err)
		}
	}
	r.logger.Info("canary.ok", logging.Fields{"cases": len(doc.Cases), "permissions": len(doc.Permissions)})
	return nil
}

func (r *Runner) invoke(ctx context.Context, c Case) error {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return err
	}
	out, err := r.lambda.Invoke(ctx, &lambda.InvokeInput{FunctionName: aws.String(c.Function), Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to invoke %s: %w", c.Function, err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("function %s errored: %s: %s", c.Function, aws.ToString(out.FunctionError), string(out.Payload))
	}
	var resp struct {
		StatusCode int    `json:"statusCode"`
		Body       string `json:"body"`
	}
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return fmt.Errorf("function %s returned a non-proxy payload: %w", c.Function, err)
	}
	if resp.StatusCode != c.ExpectStatus {
		return fmt.Errorf("unexpected status: got %d, want %d (function=%s)", resp.StatusCode, c.ExpectStatus, c.Function)
	}
	if c.ExpectBody != "" && utils.NormalizeJSON(resp.Body) != utils.NormalizeJSON(c.ExpectBody) {
		return fmt.Errorf("unexpected body: got %s, want %s (function=%s)", resp.Body, c.ExpectBody, c.Function)
	}
	r.logger.Debug("canary.case.ok", logging.Fields{"name": c.Name, "status": resp.StatusCode})
	return nil
}

func (r *Runner) simulate(ctx context.Context, p Permission) error {
	want := strings.ToLower(p.Expect)
	if want != "allowed" && want != "denied" {
		return fmt.Errorf("expect must be allowed or denied, got %q", p.Expect)
	}
	in := &iam.SimulatePrincipalPolicyInput{PolicySourceArn: aws.String(p.Role), ActionNames: p.Actions}
	if p.Resource != "" {
		in.ResourceArns = []string{p.Resource}
	}
	out, err := r.iam.SimulatePrincipalPolicy(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to simulate: %w", err)
	}
	if len(out.EvaluationResults) == 0 {
		return fmt.Errorf("simulation returned no results")
	}
	for _, res := range out.EvaluationResults {
		got := "denied"
		if res.EvalDecision == iamtypes.PolicyEvaluationDecisionTypeAllowed {
			got = "allowed"
		}
		if got != want {
			return fmt.Errorf("unexpected decision for %s: got %s (%s), want %s", aws.ToString(res.EvalActionName), got, res.EvalDecision, want)
		}
	}
	return nil
}
