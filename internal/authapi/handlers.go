// Package authapi implements the HTTP handlers behind the authApi gateway
// resource. Each handler resolves the credential bundle, calls the identity
// provider and, for creates, writes the user's role to the data store.
package authapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/mikecbrant/distro-backend/internal/datastore"
	"github.com/mikecbrant/distro-backend/internal/identity"
	"github.com/mikecbrant/distro-backend/internal/secrets"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// Handler names as routed by the gateway (authApi/<name>).
const (
	NameCreateUser       = "createCognitoUser"
	NameCreateUserPublic = "createCognitoUserPublic"
	NameListUsers        = "listCognitoUsers"
	NameGetUser          = "getCognitoUser"
	NameDeleteUser       = "deleteCognitoUser"
)

// Names lists every handler in route order.
var Names = []string{NameListUsers, NameGetUser, NameCreateUser, NameCreateUserPublic, NameDeleteUser}

// SecretResolver yields the credential bundle.
type SecretResolver interface {
	Resolve(ctx context.Context) (secrets.Credentials, error)
}

// Directory is the identity provider surface the handlers need.
type Directory interface {
	CreateUser(ctx context.Context, poolID, email string) (types.UserType, error)
	ListUsers(ctx context.Context, poolID string) ([]types.UserType, error)
	GetUser(ctx context.Context, poolID, sub string) (*types.UserType, error)
	DeleteUser(ctx context.Context, poolID, username string) error
}

// Options configures handler behaviour.
type Options struct {
	// PublicRole is assigned by createCognitoUserPublic regardless of input.
	PublicRole string
	// Compensate deletes the created identity record when the role write fails.
	Compensate bool
}

// Handler is the Lambda proxy signature every handler satisfies.
type Handler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Handlers holds the injected clients. Handlers carry no per-invocation state.
type Handlers struct {
	secrets SecretResolver
	users   Directory
	roles   datastore.RoleStore
	opts    Options
	logger  logging.Logger
}

// New wires the handlers.
func New(sr SecretResolver, users Directory, roles datastore.RoleStore, opts Options, logger logging.Logger) *Handlers {
	return &Handlers{secrets: sr, users: users, roles: roles, opts: opts, logger: logging.OrNop(logger)}
}

// Dispatch returns the handler registered under name. Lambda-style names such
// as "bootstrap.createCognitoUser" resolve by their last segment.
func (h *Handlers) Dispatch(name string) (Handler, error) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case NameCreateUser:
		return h.CreateCognitoUser, nil
	case NameCreateUserPublic:
		return h.CreateCognitoUserPublic, nil
	case NameListUsers:
		return h.ListCognitoUsers, nil
	case NameGetUser:
		return h.GetCognitoUser, nil
	case NameDeleteUser:
		return h.DeleteCognitoUser, nil
	}
	return nil, fmt.Errorf("authapi: unknown handler %q (want one of %s)", name, strings.Join(Names, ", "))
}

// fail logs err and converts it into the uniform 400.
func (h *Handlers) fail(op string, err error) (events.APIGatewayProxyResponse, error) {
	ext := describe(err)
	h.logger.Error("authapi."+op+".failed", logging.Fields{"type": ext.Type, "error": err})
	return failure(err), nil
}

func (h *Handlers) poolID(ctx context.Context) (string, error) {
	creds, err := h.secrets.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return creds.PoolID, nil
}

// CreateCognitoUser creates an account for input.Email and assigns input.Role.
func (h *Handlers) CreateCognitoUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	const op = "create"
	h.logger.Info("authapi.create.request", nil)
	var in CreateInput
	if err := decodeInput(req, &in); err != nil {
		return h.fail(op, err)
	}
	if err := requireField("Email", in.Email); err != nil {
		return h.fail(op, err)
	}
	if err := requireField("Role", in.Role); err != nil {
		return h.fail(op, err)
	}
	return h.create(ctx, op, in.Email, in.Role)
}

// CreateCognitoUserPublic creates an account for input.Email with the fixed
// public role. Any Role in the input is ignored.
func (h *Handlers) CreateCognitoUserPublic(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	const op = "create_public"
	h.logger.Info("authapi.create_public.request", nil)
	var in CreateInput
	if err := decodeInput(req, &in); err != nil {
		return h.fail(op, err)
	}
	if err := requireField("Email", in.Email); err != nil {
		return h.fail(op, err)
	}
	if in.Role != "" && in.Role != h.opts.PublicRole {
		h.logger.Warn("authapi.create_public.role_ignored", logging.Fields{"requested": in.Role})
	}
	return h.create(ctx, op, in.Email, h.opts.PublicRole)
}

func (h *Handlers) create(ctx context.Context, op, email, role string) (events.APIGatewayProxyResponse, error) {
	pool, err := h.poolID(ctx)
	if err != nil {
		return h.fail(op, err)
	}
	rec, err := h.users.CreateUser(ctx, pool, email)
	if err != nil {
		return h.fail(op, err)
	}
	sub, found := identity.Attribute(rec.Attributes, identity.AttrSub)
	if !found || sub == "" {
		return h.fail(op, fmt.Errorf("%w: %w", errNoSub, &identity.MissingAttributeError{Name: identity.AttrSub}))
	}
	if _, err := h.roles.UpsertRole(ctx, sub, role); err != nil {
		if h.opts.Compensate {
			h.compensate(ctx, op, pool, rec)
		}
		return h.fail(op, err)
	}
	h.logger.Info("authapi."+op+".ok", logging.Fields{"sub": sub, "role": role})
	return ok(map[string]string{"sub": sub})
}

// compensate removes an identity record whose role write failed. A failed
// delete is logged and otherwise ignored; the caller still sees the sync error.
func (h *Handlers) compensate(ctx context.Context, op, pool string, rec types.UserType) {
	username := ""
	if rec.Username != nil {
		username = *rec.Username
	}
	if username == "" {
		h.logger.Warn("authapi."+op+".compensate.skipped", logging.Fields{"reason": "no username"})
		return
	}
	if err := h.users.DeleteUser(ctx, pool, username); err != nil {
		h.logger.Error("authapi."+op+".compensate.failed", logging.Fields{"error": err})
		return
	}
	h.logger.Warn("authapi."+op+".compensated", nil)
}

// ListCognitoUsers returns every account's projection. The body is not read.
func (h *Handlers) ListCognitoUsers(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	const op = "list"
	h.logger.Info("authapi.list.request", nil)
	pool, err := h.poolID(ctx)
	if err != nil {
		return h.fail(op, err)
	}
	recs, err := h.users.ListUsers(ctx, pool)
	if err != nil {
		return h.fail(op, err)
	}
	users, err := identity.ProjectAll(recs)
	if err != nil {
		return h.fail(op, err)
	}
	h.logger.Info("authapi.list.ok", logging.Fields{"count": len(users)})
	return ok(users)
}

// GetCognitoUser returns the projection for input.userId. An unknown id
// answers 200 with an empty body.
func (h *Handlers) GetCognitoUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	const op = "get"
	h.logger.Info("authapi.get.request", nil)
	var in GetInput
	if err := decodeInput(req, &in); err != nil {
		return h.fail(op, err)
	}
	if err := requireField("userId", in.UserID); err != nil {
		return h.fail(op, err)
	}
	pool, err := h.poolID(ctx)
	if err != nil {
		return h.fail(op, err)
	}
	rec, err := h.users.GetUser(ctx, pool, in.UserID)
	if err != nil {
		return h.fail(op, err)
	}
	if rec == nil {
		h.logger.Info("authapi.get.not_found", nil)
		return respond(200, nil), nil
	}
	u, err := identity.Project(*rec)
	if err != nil {
		return h.fail(op, err)
	}
	return ok(u)
}

// DeleteCognitoUser removes the account named input.username. The user's role
// row is left in the data store.
func (h *Handlers) DeleteCognitoUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	const op = "delete"
	h.logger.Info("authapi.delete.request", nil)
	var in DeleteInput
	if err := decodeInput(req, &in); err != nil {
		return h.fail(op, err)
	}
	if err := requireField("username", in.Username); err != nil {
		return h.fail(op, err)
	}
	pool, err := h.poolID(ctx)
	if err != nil {
		return h.fail(op, err)
	}
	if err := h.users.DeleteUser(ctx, pool, in.Username); err != nil {
		return h.fail(op, err)
	}
	h.logger.Info("authapi.delete.ok", nil)
	return ok(map[string]string{"message": "deleted"})
}
