package authapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/require"

	"github.com/mikecbrant/distro-backend/internal/datastore"
	"github.com/mikecbrant/distro-backend/internal/identity"
	"github.com/mikecbrant/distro-backend/internal/secrets"
	"github.com/mikecbrant/distro-backend/internal/testutil"
)

type fakeSecrets struct {
	pool  string
	err   error
	calls int
}

func (f *fakeSecrets) Resolve(context.Context) (secrets.Credentials, error) {
	f.calls++
	return secrets.Credentials{PoolID: f.pool}, f.err
}

type fakeDirectory struct {
	created   []string
	createSub string
	createErr error
	records   []types.UserType
	listErr   error
	getSubs   []string
	deleted   []string
	deleteErr error
}

func userRecord(sub, email string) types.UserType {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return types.UserType{
		Username: aws.String(sub),
		Attributes: []types.AttributeType{
			{Name: aws.String("sub"), Value: aws.String(sub)},
			{Name: aws.String("email"), Value: aws.String(email)},
		},
		UserStatus:           types.UserStatusTypeConfirmed,
		UserCreateDate:       &ts,
		UserLastModifiedDate: &ts,
	}
}

func (f *fakeDirectory) CreateUser(_ context.Context, pool, email string) (types.UserType, error) {
	f.created = append(f.created, pool+"/"+email)
	if f.createErr != nil {
		return types.UserType{}, f.createErr
	}
	return userRecord(f.createSub, email), nil
}

func (f *fakeDirectory) ListUsers(context.Context, string) ([]types.UserType, error) {
	return f.records, f.listErr
}

func (f *fakeDirectory) GetUser(_ context.Context, _ string, sub string) (*types.UserType, error) {
	f.getSubs = append(f.getSubs, sub)
	for i := range f.records {
		if v, _ := identity.Attribute(f.records[i].Attributes, "sub"); v == sub {
			return &f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) DeleteUser(_ context.Context, _ string, username string) error {
	f.deleted = append(f.deleted, username)
	return f.deleteErr
}

type upsert struct{ id, role string }

type fakeRoles struct {
	upserts []upsert
	err     error
}

func (f *fakeRoles) UpsertRole(_ context.Context, id, role string) (json.RawMessage, error) {
	f.upserts = append(f.upserts, upsert{id, role})
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"data":{}}`), nil
}

func (f *fakeRoles) InsertUser(context.Context, string, string, string) error { return nil }

func (f *fakeRoles) GetRole(context.Context, string) (string, error) { return "", nil }

type fixture struct {
	secrets *fakeSecrets
	dir     *fakeDirectory
	roles   *fakeRoles
	log     *testutil.BufferLogger
	h       *Handlers
}

func newFixture(compensate bool) *fixture {
	f := &fixture{
		secrets: &fakeSecrets{pool: "pool-1"},
		dir:     &fakeDirectory{createSub: "new-sub"},
		roles:   &fakeRoles{},
		log:     &testutil.BufferLogger{},
	}
	f.h = New(f.secrets, f.dir, f.roles, Options{PublicRole: "site-user", Compensate: compensate}, f.log)
	return f
}

func body(s string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: s}
}

func decodeError(t *testing.T, resp events.APIGatewayProxyResponse) ErrorBody {
	t.Helper()
	require.Equal(t, 400, resp.StatusCode)
	var eb ErrorBody
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &eb))
	require.Contains(t, eb.Message, "Error:")
	return eb
}

func TestCreateCognitoUser_HappyPath(t *testing.T) {
	f := newFixture(true)
	resp, err := f.h.CreateCognitoUser(context.Background(), body(`{"input":{"input":{"Email":"a@b.com","Role":"admin"}}}`))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.JSONEq(t, `{"sub":"new-sub"}`, resp.Body)
	require.Equal(t, []string{"pool-1/a@b.com"}, f.dir.created)
	require.Equal(t, []upsert{{"new-sub", "admin"}}, f.roles.upserts)
	require.True(t, f.log.Has("info", "authapi.create.ok"))
}

func TestCreateCognitoUser_Validation(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"not json":      `nope`,
		"no input":      `{}`,
		"null input":    `{"input":null}`,
		"missing email": `{"input":{"input":{"Role":"admin"}}}`,
		"missing role":  `{"input":{"input":{"Email":"a@b.com"}}}`,
		"wrong shape":   `{"input":{"input":{"Email":5}}}`,
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(true)
			resp, err := f.h.CreateCognitoUser(context.Background(), body(b))
			require.NoError(t, err)
			eb := decodeError(t, resp)
			require.Equal(t, "BadRequest", eb.Extension.Type)
			require.Zero(t, f.secrets.calls, "no remote call before validation")
			require.Empty(t, f.dir.created)
		})
	}
}

func TestCreateCognitoUser_Base64Body(t *testing.T) {
	f := newFixture(true)
	req := body(base64.StdEncoding.EncodeToString([]byte(`{"input":{"input":{"Email":"a@b.com","Role":"editor"}}}`)))
	req.IsBase64Encoded = true
	resp, err := f.h.CreateCognitoUser(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "editor", f.roles.upserts[0].role)
}

func TestCreateCognitoUserPublic_RoleInvariant(t *testing.T) {
	for _, role := range []string{"", "admin", "site-user", "root", `"; drop`} {
		f := newFixture(true)
		in, _ := json.Marshal(map[string]any{"input": map[string]any{"input": map[string]string{"Email": "p@b.com", "Role": role}}})
		resp, err := f.h.CreateCognitoUserPublic(context.Background(), body(string(in)))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		require.Equal(t, []upsert{{"new-sub", "site-user"}}, f.roles.upserts, "role %q must be ignored", role)
	}
}

func TestCreate_SecretFailures(t *testing.T) {
	f := newFixture(true)
	f.secrets.err = secrets.ErrSecretNotFound
	resp, _ := f.h.CreateCognitoUser(context.Background(), body(`{"input":{"input":{"Email":"a@b.com","Role":"admin"}}}`))
	require.Equal(t, "SecretNotFound", decodeError(t, resp).Extension.Type)
	require.Empty(t, f.dir.created)

	f = newFixture(true)
	f.secrets.err = &secrets.MalformedError{SecretID: "s", Reason: "not JSON"}
	resp, _ = f.h.ListCognitoUsers(context.Background(), body(""))
	require.Equal(t, "SecretMalformed", decodeError(t, resp).Extension.Type)
}

func TestCreate_ProviderError(t *testing.T) {
	f := newFixture(true)
	f.dir.createErr = &identity.ProviderError{Op: "AdminCreateUser", Code: "UsernameExistsException", Cause: errors.New("exists")}
	resp, _ := f.h.CreateCognitoUser(context.Background(), body(`{"input":{"input":{"Email":"a@b.com","Role":"admin"}}}`))
	eb := decodeError(t, resp)
	require.Equal(t, "ProviderError", eb.Extension.Type)
	require.Equal(t, "UsernameExistsException", eb.Extension.Code)
	require.Empty(t, f.roles.upserts)
	require.True(t, f.log.Has("error", "authapi.create.failed"))
}

func TestCreate_SyncFailureCompensates(t *testing.T) {
	f := newFixture(true)
	f.roles.err = &datastore.RemoteWriteError{StatusCode: 503}
	resp, err := f.h.CreateCognitoUser(context.Background(), body(`{"input":{"input":{"Email":"a@b.com","Role":"admin"}}}`))
	require.NoError(t, err)
	eb := decodeError(t, resp)
	require.Equal(t, "RemoteWriteError", eb.Extension.Type)
	require.Equal(t, 503, eb.Extension.StatusCode)
	require.Equal(t, []string{"new-sub"}, f.dir.deleted)
	require.True(t, f.log.Has("warn", "authapi.create.compensated"))
}

func TestCreate_SyncFailureWithoutCompensation(t *testing.T) {
	f := newFixture(false)
	f.roles.err = &datastore.TransportError{Cause: errors.New("reset")}
	resp, _ := f.h.CreateCognitoUserPublic(context.Background(), body(`{"input":{"input":{"Email":"a@b.com"}}}`))
	require.Equal(t, "TransportError", decodeError(t, resp).Extension.Type)
	require.Empty(t, f.dir.deleted)
}

func TestCreate_CompensationFailureStillReportsSyncError(t *testing.T) {
	f := newFixture(true)
	f.roles.err = &datastore.ResponseParseError{Cause: errors.New("eof")}
	f.dir.deleteErr = errors.New("denied")
	resp, _ := f.h.CreateCognitoUser(context.Background(), body(`{"input":{"input":{"Email":"a@b.com","Role":"admin"}}}`))
	require.Equal(t, "ResponseParseError", decodeError(t, resp).Extension.Type)
	require.True(t, f.log.Has("error", "authapi.create.compensate.failed"))
}

func TestCreate_RecordWithoutSub(t *testing.T) {
	f := newFixture(true)
	f.dir.createSub = ""
	resp, _ := f.h.CreateCognitoUser(context.Background(), body(`{"input":{"input":{"Email":"a@b.com","Role":"admin"}}}`))
	require.Equal(t, "MissingAttribute", decodeError(t, resp).Extension.Type)
	require.Empty(t, f.roles.upserts)
}

func TestListCognitoUsers(t *testing.T) {
	f := newFixture(true)
	f.dir.records = []types.UserType{userRecord("1", "one@x.io"), userRecord("2", "two@x.io")}
	resp, err := f.h.ListCognitoUsers(context.Background(), body(`{"input":{}}`))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var users []identity.User
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &users))
	require.Len(t, users, 2)
	require.Equal(t, "one@x.io", users[0].UserName)
	require.Equal(t, "2", users[1].UserId)
}

func TestListCognitoUsers_EmptyPoolIsEmptyArray(t *testing.T) {
	f := newFixture(true)
	resp, _ := f.h.ListCognitoUsers(context.Background(), body(""))
	require.Equal(t, 200, resp.StatusCode)
	require.JSONEq(t, `[]`, resp.Body)
}

func TestListCognitoUsers_MalformedRecord(t *testing.T) {
	f := newFixture(true)
	f.dir.records = []types.UserType{{Attributes: []types.AttributeType{{Name: aws.String("email"), Value: aws.String("x@y.z")}}}}
	resp, _ := f.h.ListCognitoUsers(context.Background(), body(""))
	require.Equal(t, "MissingAttribute", decodeError(t, resp).Extension.Type)
}

func TestGetCognitoUser(t *testing.T) {
	f := newFixture(true)
	f.dir.records = []types.UserType{userRecord("abc", "a@b.com")}

	for _, b := range []string{`{"input":{"input":{"userId":"abc"}}}`, `{"input":{"userId":"abc"}}`} {
		resp, err := f.h.GetCognitoUser(context.Background(), body(b))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		var u identity.User
		require.NoError(t, json.Unmarshal([]byte(resp.Body), &u))
		require.Equal(t, "abc", u.UserId)
		require.Equal(t, "a@b.com", u.UserName)
	}
	require.Equal(t, []string{"abc", "abc"}, f.dir.getSubs)
}

func TestGetCognitoUser_UnknownIDIsEmpty200(t *testing.T) {
	f := newFixture(true)
	f.dir.records = []types.UserType{userRecord("abc", "a@b.com")}
	resp, err := f.h.GetCognitoUser(context.Background(), body(`{"input":{"input":{"userId":"zzz"}}}`))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Empty(t, resp.Body)
}

func TestGetCognitoUser_MissingUserID(t *testing.T) {
	f := newFixture(true)
	resp, _ := f.h.GetCognitoUser(context.Background(), body(`{"input":{"input":{}}}`))
	require.Equal(t, "BadRequest", decodeError(t, resp).Extension.Type)
	require.Zero(t, f.secrets.calls)
}

func TestDeleteCognitoUser(t *testing.T) {
	f := newFixture(true)
	for _, b := range []string{`{"input":{"input":{"username":"a@b.com"}}}`, `{"input":{"username":"a@b.com"}}`} {
		resp, err := f.h.DeleteCognitoUser(context.Background(), body(b))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		require.JSONEq(t, `{"message":"deleted"}`, resp.Body)
	}
	require.Equal(t, []string{"a@b.com", "a@b.com"}, f.dir.deleted)
	require.Empty(t, f.roles.upserts)
}

func TestDeleteCognitoUser_ProviderError(t *testing.T) {
	f := newFixture(true)
	f.dir.deleteErr = &identity.ProviderError{Op: "AdminDeleteUser", Code: "UserNotFoundException", Cause: errors.New("nope")}
	resp, _ := f.h.DeleteCognitoUser(context.Background(), body(`{"input":{"input":{"username":"ghost"}}}`))
	eb := decodeError(t, resp)
	require.Equal(t, "ProviderError", eb.Extension.Type)
	require.Equal(t, "UserNotFoundException", eb.Extension.Code)
}

func TestDispatch(t *testing.T) {
	f := newFixture(true)
	for _, n := range Names {
		h, err := f.h.Dispatch(n)
		require.NoError(t, err)
		require.NotNil(t, h)
	}
	h, err := f.h.Dispatch("index.listCognitoUsers")
	require.NoError(t, err)
	resp, _ := h(context.Background(), body(""))
	require.Equal(t, 200, resp.StatusCode)

	_, err = f.h.Dispatch("dropTables")
	require.Error(t, err)
}
