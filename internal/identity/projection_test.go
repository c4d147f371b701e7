package identity

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/require"
)

func TestProject_CopiesAttributes(t *testing.T) {
	cases := []struct{ sub, email string }{
		{"8c1f6d0e-1111-4b7c-9a51-3f0f5d2a7c10", "a@b.com"},
		{"x", "weird+tag@example.co.uk"},
		{"", ""},
	}
	for _, tc := range cases {
		rec := record(tc.sub, tc.email)
		u, err := Project(rec)
		require.NoError(t, err)
		require.Equal(t, tc.sub, u.UserId)
		require.Equal(t, tc.email, u.UserName)
		require.Equal(t, string(types.UserStatusTypeForceChangePassword), u.UserStatus)
		require.Equal(t, rec.UserCreateDate, u.UserCreateDate)
	}
}

func TestProject_AttributeOrderIrrelevant(t *testing.T) {
	rec := types.UserType{Attributes: []types.AttributeType{
		{Name: aws.String("email_verified"), Value: aws.String("true")},
		{Name: aws.String(AttrEmail), Value: aws.String("a@b.com")},
		{Name: aws.String(AttrSub), Value: aws.String("s")},
	}}
	u, err := Project(rec)
	require.NoError(t, err)
	require.Equal(t, "s", u.UserId)
}

func TestProject_MissingAttribute(t *testing.T) {
	noSub := types.UserType{Attributes: []types.AttributeType{{Name: aws.String(AttrEmail), Value: aws.String("a@b.com")}}}
	noEmail := types.UserType{Attributes: []types.AttributeType{{Name: aws.String(AttrSub), Value: aws.String("s")}}}

	_, err := Project(noSub)
	var me *MissingAttributeError
	require.ErrorAs(t, err, &me)
	require.Equal(t, AttrSub, me.Name)

	_, err = Project(noEmail)
	require.ErrorAs(t, err, &me)
	require.Equal(t, AttrEmail, me.Name)

	_, err = ProjectAll([]types.UserType{record("a", "a@b.com"), noSub})
	require.ErrorAs(t, err, &me)
}

func TestUser_JSONFieldNames(t *testing.T) {
	b, err := json.Marshal(User{UserName: "a@b.com", UserId: "s", UserStatus: "CONFIRMED"})
	require.NoError(t, err)
	require.JSONEq(t, `{"UserName":"a@b.com","UserId":"s","UserStatus":"CONFIRMED"}`, string(b))
}
