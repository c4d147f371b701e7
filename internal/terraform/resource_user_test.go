package provider

import (
	"context"
	"os"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	fwresource "github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"
	tftest "github.com/hashicorp/terraform-plugin-testing/helper/resource"
)

func TestUserResource_Schema(t *testing.T) {
	t.Parallel()
	var resp fwresource.SchemaResponse
	NewUserResource().Schema(context.Background(), fwresource.SchemaRequest{}, &resp)
	if resp.Diagnostics.HasError() {
		t.Fatalf("schema diagnostics: %v", resp.Diagnostics)
	}
	for name, want := range map[string]struct{ required, computed bool }{
		"id":       {computed: true},
		"email":    {required: true},
		"role":     {required: true},
		"username": {computed: true},
		"status":   {computed: true},
	} {
		attr, ok := resp.Schema.Attributes[name]
		if !ok {
			t.Fatalf("missing attribute %s", name)
		}
		if attr.IsRequired() != want.required || attr.IsComputed() != want.computed {
			t.Fatalf("%s: required=%v computed=%v", name, attr.IsRequired(), attr.IsComputed())
		}
	}
	if diags := resp.Schema.ValidateImplementation(context.Background()); diags.HasError() {
		t.Fatalf("invalid schema: %v", diags)
	}
}

func TestValidateImportID(t *testing.T) {
	t.Parallel()
	if err := validateImportID(testSub); err != nil {
		t.Fatalf("valid sub rejected: %v", err)
	}
	for _, id := range []string{"", "a@example.com", "not-a-uuid"} {
		if err := validateImportID(id); err == nil {
			t.Fatalf("%q accepted", id)
		}
	}
}

func TestConfigFromModel_OverridesEnvironment(t *testing.T) {
	t.Setenv("APP_NAME", "from-env")
	t.Setenv("HASURA_URL", "env.example.com")
	t.Setenv("HASURA_ADMIN_SECRET", "env-secret")
	t.Setenv("ROLE_STORE", "hasura")
	cfg, err := configFromModel(providerModel{
		AppName:   types.StringValue("distro"),
		HasuraURL: types.StringValue("tf.example.com"),
		Region:    types.StringNull(),
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.AppName != "distro" || cfg.HasuraURL != "tf.example.com" || cfg.HasuraAdminSecret != "env-secret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SecretName() != "distro-CognitoSecret" {
		t.Fatalf("secret name = %q", cfg.SecretName())
	}
}

func TestConfigFromModel_Validates(t *testing.T) {
	t.Setenv("APP_NAME", "distro")
	t.Setenv("ROLE_TABLE", "")
	if _, err := configFromModel(providerModel{RoleStore: types.StringValue("DynamoDB")}); err == nil {
		t.Fatalf("expected missing role table to fail")
	}
	t.Setenv("ROLE_TABLE", "roles")
	cfg, err := configFromModel(providerModel{RoleStore: types.StringValue("DynamoDB")})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.RoleStore != "dynamodb" {
		t.Fatalf("role store = %q", cfg.RoleStore)
	}
}

func TestAcc_User_basic(t *testing.T) {
	if os.Getenv("TF_ACC") == "" {
		t.Skip("set TF_ACC to run acceptance tests (requires AWS credentials and a deployed backend)")
	}
	cfg := `
provider "distro" {}
resource "distro_user" "test" {
  email = "acc-test@example.com"
  role  = "site-user"
}
`
	tftest.Test(t, tftest.TestCase{
		ProtoV6ProviderFactories: map[string]func() (tfprotov6.ProviderServer, error){
			"distro": providerserver.NewProtocol6WithError(New("dev")()),
		},
		Steps: []tftest.TestStep{{
			Config: cfg,
			Check: tftest.ComposeAggregateTestCheckFunc(
				tftest.TestCheckResourceAttrSet("distro_user.test", "id"),
				tftest.TestCheckResourceAttr("distro_user.test", "role", "site-user"),
			),
		}},
	})
}
