package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"github.com/mikecbrant/distro-backend/internal/datastore"
	"github.com/mikecbrant/distro-backend/internal/identity"
	"github.com/mikecbrant/distro-backend/internal/testutil"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

type insert struct{ id, handle, role string }

type fakeRoles struct {
	inserts   []insert
	insertErr error
	roles     map[string]string
	getErr    error
}

func (f *fakeRoles) UpsertRole(context.Context, string, string) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func (f *fakeRoles) InsertUser(_ context.Context, id, handle, role string) error {
	f.inserts = append(f.inserts, insert{id, handle, role})
	return f.insertErr
}

func (f *fakeRoles) GetRole(_ context.Context, id string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	r, ok := f.roles[id]
	if !ok {
		return "", datastore.NoRoleMappingError(id)
	}
	return r, nil
}

func newHooks(r *fakeRoles, log logging.Logger) *Hooks {
	return New(r, Options{DefaultRole: "site-user", GuestRole: "guest"}, log)
}

func postConfirmation(trigger string) events.CognitoEventUserPoolsPostConfirmation {
	var ev events.CognitoEventUserPoolsPostConfirmation
	ev.TriggerSource = trigger
	ev.UserPoolID = "pool-1"
	ev.Request.UserAttributes = map[string]string{"sub": "u-1", "custom:accountId": "acct-1", "email": "a@b.com"}
	return ev
}

func TestSignup_ConfirmSignUpInsertsDefaultRole(t *testing.T) {
	r := &fakeRoles{}
	out, err := newHooks(r, nil).Signup(context.Background(), postConfirmation(TriggerConfirmSignUp))
	require.NoError(t, err)
	require.Equal(t, []insert{{"u-1", "acct-1", "site-user"}}, r.inserts)
	require.Equal(t, postConfirmation(TriggerConfirmSignUp), out)
}

func TestSignup_ForgotPasswordWritesNothing(t *testing.T) {
	r := &fakeRoles{}
	log := &testutil.BufferLogger{}
	in := postConfirmation(TriggerConfirmForgotPassword)
	out, err := newHooks(r, log).Signup(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, r.inserts)
	require.Equal(t, in, out)
	require.True(t, log.Has("debug", "hooks.signup.skip"))
}

func TestSignup_OtherTriggerWritesNothing(t *testing.T) {
	r := &fakeRoles{}
	_, err := newHooks(r, nil).Signup(context.Background(), postConfirmation("PostConfirmation_Something"))
	require.NoError(t, err)
	require.Empty(t, r.inserts)
}

func TestSignup_InsertFailurePropagates(t *testing.T) {
	r := &fakeRoles{insertErr: &datastore.TransportError{Cause: errors.New("timeout")}}
	_, err := newHooks(r, nil).Signup(context.Background(), postConfirmation(TriggerConfirmSignUp))
	var te *datastore.TransportError
	require.ErrorAs(t, err, &te)
}

func TestSignup_MissingSub(t *testing.T) {
	r := &fakeRoles{}
	ev := postConfirmation(TriggerConfirmSignUp)
	delete(ev.Request.UserAttributes, "sub")
	_, err := newHooks(r, nil).Signup(context.Background(), ev)
	var me *identity.MissingAttributeError
	require.ErrorAs(t, err, &me)
	require.Empty(t, r.inserts)
}

func tokenGen(sub string) events.CognitoEventUserPoolsPreTokenGen {
	var ev events.CognitoEventUserPoolsPreTokenGen
	ev.TriggerSource = "TokenGeneration_Authentication"
	ev.Request.UserAttributes = map[string]string{"sub": sub}
	return ev
}

func TestSignin_OverridesClaims(t *testing.T) {
	r := &fakeRoles{roles: map[string]string{"u-1": "admin"}}
	out, err := newHooks(r, nil).Signin(context.Background(), tokenGen("u-1"))
	require.NoError(t, err)

	raw, ok := out.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride[ClaimsKey]
	require.True(t, ok)
	require.JSONEq(t, `{"x-hasura-user-id":"u-1","x-hasura-allowed-roles":["guest","admin"],"x-hasura-default-role":"site-user"}`, raw)
}

func TestSignin_NoRoleRowDeniesLogin(t *testing.T) {
	r := &fakeRoles{roles: map[string]string{}}
	out, err := newHooks(r, nil).Signin(context.Background(), tokenGen("ghost"))
	require.ErrorIs(t, err, datastore.ErrNoRoleMapping)
	require.EqualError(t, err, "no role mapping in user table for user id ghost")
	require.Nil(t, out.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride)
}

func TestSignin_LookupFailurePropagates(t *testing.T) {
	log := &testutil.BufferLogger{}
	r := &fakeRoles{getErr: &datastore.RemoteWriteError{StatusCode: 500}}
	_, err := newHooks(r, log).Signin(context.Background(), tokenGen("u-1"))
	var rw *datastore.RemoteWriteError
	require.ErrorAs(t, err, &rw)
	require.True(t, log.Has("error", "hooks.signin.failed"))
}

func TestInvoke_RoutesByTrigger(t *testing.T) {
	r := &fakeRoles{roles: map[string]string{"u-1": "editor"}}
	h := newHooks(r, nil)

	out, err := h.Invoke(context.Background(), json.RawMessage(`{"triggerSource":"PostConfirmation_ConfirmSignUp","request":{"userAttributes":{"sub":"u-2","custom:accountId":"h"}},"response":{}}`))
	require.NoError(t, err)
	require.IsType(t, events.CognitoEventUserPoolsPostConfirmation{}, out)
	require.Len(t, r.inserts, 1)

	out, err = h.Invoke(context.Background(), json.RawMessage(`{"triggerSource":"TokenGeneration_HostedAuth","request":{"userAttributes":{"sub":"u-1"}},"response":{}}`))
	require.NoError(t, err)
	tg, ok := out.(events.CognitoEventUserPoolsPreTokenGen)
	require.True(t, ok)
	require.Contains(t, tg.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride[ClaimsKey], "editor")

	_, err = h.Invoke(context.Background(), json.RawMessage(`{"triggerSource":"PreSignUp_SignUp"}`))
	require.Error(t, err)
}

func TestDispatch(t *testing.T) {
	h := newHooks(&fakeRoles{}, nil)
	for _, n := range []string{NameSignup, "index.signinHandler", ""} {
		fn, err := h.Dispatch(n)
		require.NoError(t, err)
		require.NotNil(t, fn)
	}
	_, err := h.Dispatch("nope")
	require.Error(t, err)
}
