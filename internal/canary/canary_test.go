package canary

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

var testVars = map[string]string{
	"LIST_USERS_FUNCTION":         "list-fn",
	"GET_USER_FUNCTION":           "get-fn",
	"CREATE_USER_PUBLIC_FUNCTION": "public-fn",
	"AUTH_ROLE_ARN":               "arn:aws:iam::123456789012:role/auth",
	"USER_POOL_ARN":               "arn:aws:cognito-idp:eu-west-2:123456789012:userpool/p",
	"SECRET_ARN":                  "arn:aws:secretsmanager:eu-west-2:123456789012:secret:s",
}

type fakeLambda struct {
	status map[string]int
	resp   map[string]string
	calls  []string
	bodies []string
}

func (f *fakeLambda) Invoke(_ context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	fn := aws.ToString(in.FunctionName)
	f.calls = append(f.calls, fn)
	var req struct {
		Body string `json:"body"`
	}
	_ = json.Unmarshal(in.Payload, &req)
	f.bodies = append(f.bodies, req.Body)
	b, _ := json.Marshal(map[string]any{"statusCode": f.status[fn], "body": f.resp[fn]})
	return &lambda.InvokeOutput{StatusCode: 200, Payload: b}, nil
}

type fakeIAM struct {
	denied map[string]bool
}

func (f *fakeIAM) SimulatePrincipalPolicy(_ context.Context, in *iam.SimulatePrincipalPolicyInput, _ ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	out := &iam.SimulatePrincipalPolicyOutput{}
	for _, a := range in.ActionNames {
		d := iamtypes.PolicyEvaluationDecisionTypeAllowed
		if f.denied[a] {
			d = iamtypes.PolicyEvaluationDecisionTypeImplicitDeny
		}
		out.EvaluationResults = append(out.EvaluationResults, iamtypes.EvaluationResult{EvalActionName: aws.String(a), EvalDecision: d})
	}
	return out, nil
}

func healthy() (*fakeLambda, *fakeIAM) {
	return &fakeLambda{status: map[string]int{"list-fn": 200, "get-fn": 200, "public-fn": 400}},
		&fakeIAM{denied: map[string]bool{"cognito-idp:AdminSetUserPassword": true, "cognito-idp:AdminAddUserToGroup": true}}
}

func TestLoad_BaseCanaries(t *testing.T) {
	doc, err := Load("", testVars)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc.Cases) != 3 || len(doc.Permissions) != 3 {
		t.Fatalf("unexpected base canaries: %+v", doc)
	}
	if doc.Cases[0].Function != "list-fn" || doc.Permissions[0].Role != testVars["AUTH_ROLE_ARN"] {
		t.Fatalf("placeholders not substituted: %+v", doc)
	}
}

func TestLoad_UndefinedVariable(t *testing.T) {
	_, err := Load("", map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "LIST_USERS_FUNCTION") {
		t.Fatalf("expected undefined variable error, got %v", err)
	}
}

func TestLoad_ConsumerFileFirst(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "canaries.yaml")
	body := "cases:\n  - name: custom\n    function: ${GET_USER_FUNCTION}\n    payload: {body: '{}'}\n    expectStatus: 400\n"
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := Load(p, testVars)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc.Cases) != 4 || doc.Cases[0].Name != "custom" {
		t.Fatalf("consumer cases should run first: %+v", doc.Cases)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml"), testVars); err != nil {
		t.Fatalf("missing consumer file must be ignored: %v", err)
	}
}

func TestRun_AllPass(t *testing.T) {
	l, i := healthy()
	doc, err := Load("", testVars)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewRunner(l, i, nil).Run(context.Background(), doc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(l.calls) != 3 || !strings.Contains(l.bodies[1], "00000000-0000-0000-0000-000000000000") {
		t.Fatalf("unexpected invocations: %v %v", l.calls, l.bodies)
	}
}

func TestRun_StatusMismatch(t *testing.T) {
	l, i := healthy()
	l.status["get-fn"] = 400
	doc, _ := Load("", testVars)
	err := NewRunner(l, i, nil).Run(context.Background(), doc)
	if err == nil || !strings.Contains(err.Error(), "canary #2") {
		t.Fatalf("expected numbered failure, got %v", err)
	}
}

func TestRun_PermissionMismatch(t *testing.T) {
	l, i := healthy()
	i.denied["secretsmanager:GetSecretValue"] = true
	doc, _ := Load("", testVars)
	err := NewRunner(l, i, nil).Run(context.Background(), doc)
	if err == nil || !strings.Contains(err.Error(), "permission canary #2") {
		t.Fatalf("expected permission failure, got %v", err)
	}
}

func TestRun_BadExpect(t *testing.T) {
	l, i := healthy()
	doc := Doc{Permissions: []Permission{{Role: "r", Actions: []string{"a"}, Expect: "maybe"}}}
	if err := NewRunner(l, i, nil).Run(context.Background(), doc); err == nil {
		t.Fatalf("expected error for unknown expectation")
	}
}

func TestRun_ExpectBody(t *testing.T) {
	l, i := healthy()
	l.resp = map[string]string{"public-fn": `{ "message": "Error:missing Email",  "extension": {} }`}
	doc := Doc{Cases: []Case{{
		Name:         "public create body",
		Function:     "public-fn",
		ExpectStatus: 400,
		ExpectBody:   `{"extension":{},"message":"Error:missing Email"}`,
	}}}
	if err := NewRunner(l, i, nil).Run(context.Background(), doc); err != nil {
		t.Fatalf("equivalent JSON bodies must match: %v", err)
	}

	doc.Cases[0].ExpectBody = `{"message":"other"}`
	err := NewRunner(l, i, nil).Run(context.Background(), doc)
	if err == nil || !strings.Contains(err.Error(), "unexpected body") {
		t.Fatalf("expected body mismatch, got %v", err)
	}
}
