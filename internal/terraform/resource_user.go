package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

var _ resource.Resource = (*userResource)(nil)
var _ resource.ResourceWithConfigure = (*userResource)(nil)
var _ resource.ResourceWithImportState = (*userResource)(nil)

// NewUserResource creates the distro_user resource.
func NewUserResource() resource.Resource { return &userResource{} }

type userResource struct {
	svc *userService
}

type userModel struct {
	ID       types.String `tfsdk:"id"`
	Email    types.String `tfsdk:"email"`
	Role     types.String `tfsdk:"role"`
	Username types.String `tfsdk:"username"`
	Status   types.String `tfsdk:"status"`
}

func (m *userModel) fill(rec userRecord) {
	m.ID = types.StringValue(rec.ID)
	m.Email = types.StringValue(rec.Email)
	m.Role = types.StringValue(rec.Role)
	m.Username = types.StringValue(rec.Username)
	m.Status = types.StringValue(rec.Status)
}

func (r *userResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_user"
}

func (r *userResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	keep := []planmodifier.String{stringplanmodifier.UseStateForUnknown()}
	resp.Schema = schema.Schema{
		Description: "A Cognito user with its role row in the data store.",
		Attributes: map[string]schema.Attribute{
			"id":       schema.StringAttribute{Computed: true, Description: "Cognito sub.", PlanModifiers: keep},
			"email":    schema.StringAttribute{Required: true, PlanModifiers: []planmodifier.String{stringplanmodifier.RequiresReplace()}},
			"role":     schema.StringAttribute{Required: true},
			"username": schema.StringAttribute{Computed: true, PlanModifiers: keep},
			"status":   schema.StringAttribute{Computed: true, PlanModifiers: keep},
		},
	}
}

func (r *userResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}
	svc, ok := req.ProviderData.(*userService)
	if !ok {
		resp.Diagnostics.AddError("Unexpected provider data", fmt.Sprintf("expected *userService, got %T", req.ProviderData))
		return
	}
	r.svc = svc
}

func (r *userResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan userModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}
	rec, err := r.svc.create(ctx, plan.Email.ValueString(), plan.Role.ValueString())
	if err != nil {
		resp.Diagnostics.AddError("Create user failed", err.Error())
		return
	}
	plan.fill(rec)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *userResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state userModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}
	rec, err := r.svc.read(ctx, state.ID.ValueString())
	if err != nil {
		resp.Diagnostics.AddError("Read user failed", err.Error())
		return
	}
	if rec == nil {
		resp.State.RemoveResource(ctx)
		return
	}
	state.fill(*rec)
	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

func (r *userResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state userModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if err := r.svc.setRole(ctx, state.ID.ValueString(), plan.Role.ValueString()); err != nil {
		resp.Diagnostics.AddError("Update role failed", err.Error())
		return
	}
	state.Role = plan.Role
	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

func (r *userResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state userModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if err := r.svc.delete(ctx, state.Username.ValueString()); err != nil {
		resp.Diagnostics.AddError("Delete user failed", err.Error())
	}
}

// validateImportID accepts only a Cognito sub.
func validateImportID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("import id must be the user's sub (a UUID), got %q", id)
	}
	return nil
}

func (r *userResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	if err := validateImportID(req.ID); err != nil {
		resp.Diagnostics.AddError("Invalid import id", err.Error())
		return
	}
	resource.ImportStatePassthroughID(ctx, path.Root("id"), req, resp)
}
