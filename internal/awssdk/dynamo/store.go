package dynamo

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	awserrors "github.com/mikecbrant/distro-backend/internal/awssdk/errors"
	"github.com/mikecbrant/distro-backend/internal/datastore"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// API is the subset of the DynamoDB client used by RoleStore.
type API interface {
	TxWriter
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// RoleStore keeps user roles in a single DynamoDB table.
type RoleStore struct {
	client API
	table  string
	logger logging.Logger
}

var _ datastore.RoleStore = (*RoleStore)(nil)

// NewRoleStore returns a RoleStore over table.
func NewRoleStore(client API, table string, logger logging.Logger) *RoleStore {
	return &RoleStore{client: client, table: table, logger: logging.OrNop(logger)}
}

type roleRow struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// UpsertRole sets the role attribute on the user row, creating it when absent.
// The response mirrors the GraphQL backend's insert_user_one payload.
func (s *RoleStore) UpsertRole(ctx context.Context, userID, role string) (json.RawMessage, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              UserPrimaryKey(userID),
		UpdateExpression: aws.String("SET #id = :id, #role = :role"),
		ExpressionAttributeNames: map[string]string{
			"#id":   AttrID,
			"#role": AttrRole,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":   StringAttribute(userID),
			":role": StringAttribute(role),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		s.logger.Error("dynamo.upsert_role.failed", logging.Fields{"code": awserrors.Code(err)})
		return nil, awserrors.Classify(err)
	}
	row := roleRow{ID: userID, Role: role}
	if out != nil && out.Attributes != nil {
		row = roleRow{ID: StringValue(out.Attributes, AttrID), Role: StringValue(out.Attributes, AttrRole)}
	}
	return json.Marshal(map[string]any{"data": map[string]any{"insert_user_one": row}})
}

// InsertUser writes the user row and, when handle is set, a guard row that
// keeps handles unique. Both puts fail if their key already exists.
func (s *RoleStore) InsertUser(ctx context.Context, userID, handle, role string) error {
	puts := []TxPut{{Item: UserItem(userID, handle, role)}}
	if handle != "" {
		puts = append(puts, TxPut{Item: UserHandleGuard(handle, userID)})
	}
	return WriteTransaction(ctx, s.client, s.table, puts, nil, s.logger)
}

// GetRole reads the role with a strongly consistent GetItem.
func (s *RoleStore) GetRole(ctx context.Context, userID string) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.table),
		Key:                  UserPrimaryKey(userID),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("#role"),
		ExpressionAttributeNames: map[string]string{
			"#role": AttrRole,
		},
	})
	if err != nil {
		return "", awserrors.Classify(err)
	}
	// A missing row and a row without a role both mean the user has no mapping.
	role := ""
	if out != nil {
		role = StringValue(out.Item, AttrRole)
	}
	if role == "" {
		return "", datastore.NoRoleMappingError(userID)
	}
	return role, nil
}
