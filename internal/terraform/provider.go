package provider

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/mikecbrant/distro-backend/internal/awssdk"
	"github.com/mikecbrant/distro-backend/internal/config"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
	"github.com/mikecbrant/distro-backend/internal/wiring"
)

// Ensure implementation satisfies expected interfaces
var _ provider.Provider = (*distroProvider)(nil)

type distroProvider struct {
	version string
}

// New returns a provider factory closure with the given version string.
func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &distroProvider{version: version}
	}
}

type providerModel struct {
	Region            types.String `tfsdk:"region"`
	AppName           types.String `tfsdk:"app_name"`
	HasuraURL         types.String `tfsdk:"hasura_url"`
	HasuraAdminSecret types.String `tfsdk:"hasura_admin_secret"`
	RoleStore         types.String `tfsdk:"role_store"`
	RoleTable         types.String `tfsdk:"role_table"`
}

func (p *distroProvider) Metadata(_ context.Context, _ provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "distro"
	resp.Version = p.version
}

func (p *distroProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	// Unset attributes fall back to the same environment variables the functions read.
	resp.Schema = schema.Schema{
		Description: "Seed and manage users of a distro backend: Cognito identity plus role row.",
		Attributes: map[string]schema.Attribute{
			"region":              schema.StringAttribute{Optional: true},
			"app_name":            schema.StringAttribute{Optional: true, Description: "Derives the <app_name>-CognitoSecret holding the pool id."},
			"hasura_url":          schema.StringAttribute{Optional: true},
			"hasura_admin_secret": schema.StringAttribute{Optional: true, Sensitive: true},
			"role_store":          schema.StringAttribute{Optional: true, Description: "hasura (default) or dynamodb."},
			"role_table":          schema.StringAttribute{Optional: true},
		},
	}
}

func overrideString(dst *string, v types.String) {
	if !v.IsNull() && !v.IsUnknown() && strings.TrimSpace(v.ValueString()) != "" {
		*dst = v.ValueString()
	}
}

// configFromModel layers provider attributes over the environment.
func configFromModel(m providerModel) (*config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	overrideString(&cfg.Region, m.Region)
	overrideString(&cfg.AppName, m.AppName)
	overrideString(&cfg.HasuraURL, m.HasuraURL)
	overrideString(&cfg.HasuraAdminSecret, m.HasuraAdminSecret)
	overrideString(&cfg.RoleStore, m.RoleStore)
	overrideString(&cfg.RoleTable, m.RoleTable)
	cfg.RoleStore = strings.ToLower(strings.TrimSpace(cfg.RoleStore))
	if err := cfg.Validate(config.ScopeAuthAPI); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *distroProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var m providerModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &m)...)
	if resp.Diagnostics.HasError() {
		return
	}
	cfg, err := configFromModel(m)
	if err != nil {
		resp.Diagnostics.AddError("Invalid provider configuration", err.Error())
		return
	}
	awsCfg, err := awssdk.LoadDefault(ctx, cfg.Region)
	if err != nil {
		resp.Diagnostics.AddError("AWS config error", err.Error())
		return
	}
	logger := logging.New(cfg.LogLevel, logging.Fields{"component": "terraform-provider-distro"})
	roles, err := wiring.RoleStore(cfg, awsCfg, logger)
	if err != nil {
		resp.Diagnostics.AddError("Role store error", err.Error())
		return
	}
	resp.ResourceData = &userService{
		secrets: wiring.Secrets(cfg, awsCfg, logger),
		users:   wiring.Directory(cfg, awsCfg, logger),
		roles:   roles,
		logger:  logger,
	}
}

func (p *distroProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewUserResource,
	}
}

func (p *distroProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return nil
}
