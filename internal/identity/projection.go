package identity

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// Attribute names read from identity records.
const (
	AttrSub       = "sub"
	AttrEmail     = "email"
	AttrAccountID = "custom:accountId"
)

// User is the public shape of an identity record. Field names are part of the
// HTTP contract.
type User struct {
	UserName             string     `json:"UserName"`
	UserId               string     `json:"UserId"`
	UserCreateDate       *time.Time `json:"UserCreateDate,omitempty"`
	UserStatus           string     `json:"UserStatus"`
	UserLastModifiedDate *time.Time `json:"UserLastModifiedDate,omitempty"`
}

// Attribute returns the value of the named attribute and whether it was present.
func Attribute(attrs []types.AttributeType, name string) (string, bool) {
	for _, a := range attrs {
		if aws.ToString(a.Name) == name && a.Value != nil {
			return *a.Value, true
		}
	}
	return "", false
}

// Project maps a raw identity record to User. It fails with MissingAttributeError
// when sub or email is absent.
func Project(u types.UserType) (User, error) {
	email, ok := Attribute(u.Attributes, AttrEmail)
	if !ok {
		return User{}, &MissingAttributeError{Name: AttrEmail}
	}
	sub, ok := Attribute(u.Attributes, AttrSub)
	if !ok {
		return User{}, &MissingAttributeError{Name: AttrSub}
	}
	return User{
		UserName:             email,
		UserId:               sub,
		UserCreateDate:       u.UserCreateDate,
		UserStatus:           string(u.UserStatus),
		UserLastModifiedDate: u.UserLastModifiedDate,
	}, nil
}

// ProjectAll projects every record, failing on the first malformed one.
func ProjectAll(records []types.UserType) ([]User, error) {
	out := make([]User, 0, len(records))
	for _, r := range records {
		u, err := Project(r)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
