package dynamo

import "fmt"

// Attribute names of a user row.
const (
	AttrID     = "id"
	AttrRole   = "role"
	AttrHandle = "handle"
)

// UserPK returns the partition key for a user record.
func UserPK(userId string) string { return fmt.Sprintf("USER#%s", userId) }

// UserSK returns the sort key for a user record.
func UserSK(userId string) string { return fmt.Sprintf("USER#%s", userId) }

// UserPrimaryKey returns a full PK/SK pair for a user id.
func UserPrimaryKey(userId string) Item {
	return Item{
		"PK": StringAttribute(UserPK(userId)),
		"SK": StringAttribute(UserSK(userId)),
	}
}

// UserHandlePK returns the key for the account-handle uniqueness guard row.
func UserHandlePK(handle string) string { return fmt.Sprintf("USER_HANDLE#%s", handle) }

// UserHandleGuard returns the guard row claiming handle for userId.
func UserHandleGuard(handle, userId string) Item {
	v := UserHandlePK(handle)
	return Item{
		"PK":   StringAttribute(v),
		"SK":   StringAttribute(v),
		AttrID: StringAttribute(userId),
	}
}

// UserItem returns the full user row.
func UserItem(userId, handle, role string) Item {
	it := UserPrimaryKey(userId)
	it[AttrID] = StringAttribute(userId)
	it[AttrRole] = StringAttribute(role)
	if handle != "" {
		it[AttrHandle] = StringAttribute(handle)
	}
	return it
}
