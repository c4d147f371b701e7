package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	awserrors "github.com/mikecbrant/distro-backend/internal/awssdk/errors"
	"github.com/mikecbrant/distro-backend/internal/datastore"
	"github.com/mikecbrant/distro-backend/internal/identity"
	"github.com/mikecbrant/distro-backend/internal/secrets"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

type secretResolver interface {
	Resolve(ctx context.Context) (secrets.Credentials, error)
}

type directory interface {
	CreateUser(ctx context.Context, poolID, email string) (types.UserType, error)
	GetUser(ctx context.Context, poolID, sub string) (*types.UserType, error)
	DeleteUser(ctx context.Context, poolID, username string) error
}

// userService performs the two-store writes behind distro_user.
type userService struct {
	secrets secretResolver
	users   directory
	roles   datastore.RoleStore
	logger  logging.Logger
}

type userRecord struct {
	ID       string
	Username string
	Email    string
	Role     string
	Status   string
}

// create registers the identity then writes its role. A failed role write
// deletes the identity again so no half-created user is left behind.
func (s *userService) create(ctx context.Context, email, role string) (userRecord, error) {
	creds, err := s.secrets.Resolve(ctx)
	if err != nil {
		return userRecord{}, err
	}
	rec, err := s.users.CreateUser(ctx, creds.PoolID, email)
	if err != nil {
		return userRecord{}, err
	}
	u, err := identity.Project(rec)
	if err == nil {
		_, err = s.roles.UpsertRole(ctx, u.UserId, role)
	}
	// The provider's Username (the sub in an email-alias pool) is the delete key,
	// not the email the projection reports as UserName.
	username := aws.ToString(rec.Username)
	if err != nil {
		if derr := s.users.DeleteUser(ctx, creds.PoolID, username); derr != nil {
			s.logger.Error("terraform.user.compensate.failed", logging.Fields{"username": username, "error": derr.Error()})
			return userRecord{}, fmt.Errorf("%w (removing identity %s also failed: %v)", err, username, derr)
		}
		return userRecord{}, err
	}
	s.logger.Info("terraform.user.create.ok", logging.Fields{"userId": u.UserId})
	return userRecord{ID: u.UserId, Username: username, Email: email, Role: role, Status: u.UserStatus}, nil
}

// read returns nil when the identity no longer exists. A user without a role
// row reads back with an empty role.
func (s *userService) read(ctx context.Context, id string) (*userRecord, error) {
	creds, err := s.secrets.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.users.GetUser(ctx, creds.PoolID, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	u, err := identity.Project(*rec)
	if err != nil {
		return nil, err
	}
	email, _ := identity.Attribute(rec.Attributes, identity.AttrEmail)
	role, err := s.roles.GetRole(ctx, id)
	if errors.Is(err, datastore.ErrNoRoleMapping) {
		role, err = "", nil
	}
	if err != nil {
		return nil, err
	}
	return &userRecord{ID: u.UserId, Username: aws.ToString(rec.Username), Email: email, Role: role, Status: u.UserStatus}, nil
}

func (s *userService) setRole(ctx context.Context, id, role string) error {
	_, err := s.roles.UpsertRole(ctx, id, role)
	return err
}

// delete removes the identity; one that is already gone counts as deleted.
func (s *userService) delete(ctx context.Context, username string) error {
	creds, err := s.secrets.Resolve(ctx)
	if err != nil {
		return err
	}
	if err := s.users.DeleteUser(ctx, creds.PoolID, username); err != nil && !awserrors.IsNotFound(err) {
		return err
	}
	return nil
}
