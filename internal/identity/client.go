// Package identity wraps the Cognito user pool operations the backend performs and
// projects raw records into the public User shape.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// API is the subset of the Cognito client used here.
type API interface {
	AdminCreateUser(ctx context.Context, in *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminDeleteUser(ctx context.Context, in *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
	cip.ListUsersAPIClient
}

// Options tunes account creation.
type Options struct {
	// TemporaryPassword is set on every created account; the provider forces a change on first sign-in.
	TemporaryPassword string
	// PhoneNumber, when non-empty, is attached as phone_number.
	PhoneNumber string
}

// Client issues single-attempt calls against a user pool.
type Client struct {
	api    API
	opts   Options
	logger logging.Logger
}

// NewClient returns a Client over api.
func NewClient(api API, opts Options, logger logging.Logger) *Client {
	return &Client{api: api, opts: opts, logger: logging.OrNop(logger)}
}

// CreateUserInput builds the deterministic creation request for email.
// Credentials are delivered by the provider via email.
func (c *Client) CreateUserInput(poolID, email string) *cip.AdminCreateUserInput {
	attrs := []types.AttributeType{
		{Name: aws.String(AttrEmail), Value: aws.String(email)},
	}
	if c.opts.PhoneNumber != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("phone_number"), Value: aws.String(c.opts.PhoneNumber)})
	}
	attrs = append(attrs, types.AttributeType{Name: aws.String("email_verified"), Value: aws.String("true")})
	in := &cip.AdminCreateUserInput{
		UserPoolId:             aws.String(poolID),
		Username:               aws.String(email),
		DesiredDeliveryMediums: []types.DeliveryMediumType{types.DeliveryMediumTypeEmail},
		UserAttributes:         attrs,
	}
	if c.opts.TemporaryPassword != "" {
		in.TemporaryPassword = aws.String(c.opts.TemporaryPassword)
	}
	return in
}

// CreateUser creates an account for email and returns the created record.
// Email format is validated by the provider, not here.
func (c *Client) CreateUser(ctx context.Context, poolID, email string) (types.UserType, error) {
	out, err := c.api.AdminCreateUser(ctx, c.CreateUserInput(poolID, email))
	if err != nil {
		return types.UserType{}, providerError("AdminCreateUser", err)
	}
	if out.User == nil {
		return types.UserType{}, &ProviderError{Op: "AdminCreateUser", Cause: fmt.Errorf("response carried no user record")}
	}
	c.logger.Info("identity.create.ok", logging.Fields{"poolId": poolID, "status": string(out.User.UserStatus)})
	return *out.User, nil
}

// ListUsers returns every record in the pool in provider order, following
// pagination tokens until the provider reports no more pages.
func (c *Client) ListUsers(ctx context.Context, poolID string) ([]types.UserType, error) {
	p := cip.NewListUsersPaginator(c.api, &cip.ListUsersInput{UserPoolId: aws.String(poolID)})
	var users []types.UserType
	pages := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, providerError("ListUsers", err)
		}
		pages++
		users = append(users, page.Users...)
	}
	c.logger.Debug("identity.list.ok", logging.Fields{"poolId": poolID, "pages": pages, "users": len(users)})
	return users, nil
}

// GetUser looks up a single record by its stable identifier (sub).
// It returns (nil, nil) when no record matches.
func (c *Client) GetUser(ctx context.Context, poolID, sub string) (*types.UserType, error) {
	out, err := c.api.ListUsers(ctx, &cip.ListUsersInput{
		UserPoolId: aws.String(poolID),
		Filter:     aws.String(SubFilter(sub)),
		Limit:      aws.Int32(1),
	})
	if err != nil {
		return nil, providerError("ListUsers", err)
	}
	for i := range out.Users {
		if v, ok := Attribute(out.Users[i].Attributes, AttrSub); ok && v == sub {
			return &out.Users[i], nil
		}
	}
	return nil, nil
}

// DeleteUser removes the record with the given username.
func (c *Client) DeleteUser(ctx context.Context, poolID, username string) error {
	if _, err := c.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(poolID),
		Username:   aws.String(username),
	}); err != nil {
		return providerError("AdminDeleteUser", err)
	}
	c.logger.Info("identity.delete.ok", logging.Fields{"poolId": poolID})
	return nil
}

// SubFilter renders the ListUsers filter expression for an exact sub match.
func SubFilter(sub string) string {
	escaped := strings.ReplaceAll(strings.ReplaceAll(sub, `\`, `\\`), `"`, `\"`)
	return fmt.Sprintf(`%s = "%s"`, AttrSub, escaped)
}
