// Package dynamo holds the DynamoDB single-table layout for the role store:
// key builders, a conditional transaction writer and the RoleStore backend.
//
// Generic AWS/smithy error categories live under internal/awssdk/errors; this
// package classifies through it and only adds table/operation context.
package dynamo
