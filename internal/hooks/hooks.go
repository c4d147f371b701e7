// Package hooks implements the Cognito lifecycle triggers: the post-confirmation
// sign-up hook that inserts the user row, and the pre-token-generation sign-in
// hook that computes the session's Hasura claims.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/mikecbrant/distro-backend/internal/datastore"
	"github.com/mikecbrant/distro-backend/internal/identity"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// Trigger sources handled by Signup.
const (
	TriggerConfirmSignUp         = "PostConfirmation_ConfirmSignUp"
	TriggerConfirmForgotPassword = "PostConfirmation_ConfirmForgotPassword"
)

// Hasura claim names.
const (
	ClaimsKey         = "https://hasura.io/jwt/claims"
	ClaimUserID       = "x-hasura-user-id"
	ClaimAllowedRoles = "x-hasura-allowed-roles"
	ClaimDefaultRole  = "x-hasura-default-role"
)

// Handler names as configured on the functions.
const (
	NameSignup = "signupHandler"
	NameSignin = "signinHandler"
)

// Options fixes the roles written into rows and tokens.
type Options struct {
	// DefaultRole is inserted for new users and set as the token's default role.
	DefaultRole string
	// GuestRole is always part of the token's allowed roles.
	GuestRole string
}

// Hooks carries the injected role store.
type Hooks struct {
	roles  datastore.RoleStore
	opts   Options
	logger logging.Logger
}

// New wires the hooks.
func New(roles datastore.RoleStore, opts Options, logger logging.Logger) *Hooks {
	return &Hooks{roles: roles, opts: opts, logger: logging.OrNop(logger)}
}

// Signup inserts the user row after a confirmed sign-up. A password-reset
// confirmation, or any other trigger, writes nothing. The event is returned
// unchanged so the provider's flow completes; an insert failure is returned
// to the provider.
func (h *Hooks) Signup(ctx context.Context, ev events.CognitoEventUserPoolsPostConfirmation) (events.CognitoEventUserPoolsPostConfirmation, error) {
	h.logger.Info("hooks.signup.event", logging.Fields{"trigger": ev.TriggerSource, "userPoolId": ev.UserPoolID})
	switch ev.TriggerSource {
	case TriggerConfirmForgotPassword:
		h.logger.Debug("hooks.signup.skip", logging.Fields{"trigger": ev.TriggerSource})
		return ev, nil
	case TriggerConfirmSignUp:
		sub := ev.Request.UserAttributes[identity.AttrSub]
		if sub == "" {
			err := &identity.MissingAttributeError{Name: identity.AttrSub}
			h.logger.Error("hooks.signup.failed", logging.Fields{"error": err})
			return ev, err
		}
		handle := ev.Request.UserAttributes[identity.AttrAccountID]
		if err := h.roles.InsertUser(ctx, sub, handle, h.opts.DefaultRole); err != nil {
			h.logger.Error("hooks.signup.failed", logging.Fields{"sub": sub, "error": err})
			return ev, err
		}
		h.logger.Info("hooks.signup.ok", logging.Fields{"sub": sub})
		return ev, nil
	default:
		h.logger.Warn("hooks.signup.unhandled_trigger", logging.Fields{"trigger": ev.TriggerSource})
		return ev, nil
	}
}

// Claims is the Hasura claim set embedded in issued tokens.
type Claims struct {
	UserID       string   `json:"x-hasura-user-id"`
	AllowedRoles []string `json:"x-hasura-allowed-roles"`
	DefaultRole  string   `json:"x-hasura-default-role"`
}

// ClaimsFor returns the claim set for a user holding role.
func (h *Hooks) ClaimsFor(sub, role string) Claims {
	return Claims{
		UserID:       sub,
		AllowedRoles: []string{h.opts.GuestRole, role},
		DefaultRole:  h.opts.DefaultRole,
	}
}

// Signin looks up the user's role and overrides the token claims. A user with
// no role row fails the authentication attempt.
func (h *Hooks) Signin(ctx context.Context, ev events.CognitoEventUserPoolsPreTokenGen) (events.CognitoEventUserPoolsPreTokenGen, error) {
	h.logger.Info("hooks.signin.event", logging.Fields{"trigger": ev.TriggerSource, "userPoolId": ev.UserPoolID})
	sub := ev.Request.UserAttributes[identity.AttrSub]
	if sub == "" {
		err := &identity.MissingAttributeError{Name: identity.AttrSub}
		h.logger.Error("hooks.signin.failed", logging.Fields{"error": err})
		return ev, err
	}
	role, err := h.roles.GetRole(ctx, sub)
	if err != nil {
		h.logger.Error("hooks.signin.failed", logging.Fields{"sub": sub, "error": err})
		return ev, err
	}
	b, err := json.Marshal(h.ClaimsFor(sub, role))
	if err != nil {
		return ev, err
	}
	ev.Response = events.CognitoEventUserPoolsPreTokenGenResponse{
		ClaimsOverrideDetails: events.ClaimsOverrideDetails{
			ClaimsToAddOrOverride: map[string]string{ClaimsKey: string(b)},
		},
	}
	h.logger.Info("hooks.signin.ok", logging.Fields{"sub": sub, "role": role})
	return ev, nil
}

type header struct {
	TriggerSource string `json:"triggerSource"`
}

// Invoke routes a raw provider event to Signup or Signin by its trigger source,
// so one function can serve both triggers.
func (h *Hooks) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var hd header
	if err := json.Unmarshal(raw, &hd); err != nil {
		return nil, fmt.Errorf("hooks: decode event: %w", err)
	}
	switch {
	case strings.HasPrefix(hd.TriggerSource, "PostConfirmation_"):
		var ev events.CognitoEventUserPoolsPostConfirmation
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("hooks: decode post confirmation event: %w", err)
		}
		return h.Signup(ctx, ev)
	case strings.HasPrefix(hd.TriggerSource, "TokenGeneration_"):
		var ev events.CognitoEventUserPoolsPreTokenGen
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("hooks: decode token generation event: %w", err)
		}
		return h.Signin(ctx, ev)
	}
	return nil, fmt.Errorf("hooks: unsupported trigger source %q", hd.TriggerSource)
}

// Dispatch returns the typed handler registered under name, resolving
// Lambda-style names by their last dotted segment.
func (h *Hooks) Dispatch(name string) (any, error) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case NameSignup:
		return h.Signup, nil
	case NameSignin:
		return h.Signin, nil
	case "", "bootstrap":
		return h.Invoke, nil
	}
	return nil, fmt.Errorf("hooks: unknown handler %q", name)
}
