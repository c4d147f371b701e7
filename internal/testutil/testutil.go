package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/mikecbrant/distro-backend/internal/utils/logging"
)

// FakeDynamoTxnClient is a minimal fake for TransactWriteItems used in tests.
type FakeDynamoTxnClient struct {
	In  *dynamodb.TransactWriteItemsInput
	Err error
}

// TransactWriteItems records the input and returns the configured error.
func (f *FakeDynamoTxnClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.In = in
	return &dynamodb.TransactWriteItemsOutput{}, f.Err
}

// BufferLogger is a buffer-backed logger that records calls for assertions.
type BufferLogger struct {
	mu      sync.Mutex
	Calls   []string
	Entries []string
	Fields  []logging.Fields
}

// Debug records a debug-level log entry.
func (l *BufferLogger) Debug(msg string, ctx logging.Fields) { l.record("debug", msg, ctx) }

// Info records an info-level log entry.
func (l *BufferLogger) Info(msg string, ctx logging.Fields) { l.record("info", msg, ctx) }

// Warn records a warn-level log entry.
func (l *BufferLogger) Warn(msg string, ctx logging.Fields) { l.record("warn", msg, ctx) }

// Error records an error-level log entry.
func (l *BufferLogger) Error(msg string, ctx logging.Fields) { l.record("error", msg, ctx) }

func (l *BufferLogger) record(level, msg string, ctx logging.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, level)
	// simple human-readable capture for assertions; not a JSON serializer
	l.Entries = append(l.Entries, fmt.Sprintf("%s: %s ctx=%v", level, msg, ctx))
	l.Fields = append(l.Fields, ctx)
}

// Has reports whether an entry at level with the given message was recorded.
func (l *BufferLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := level + ": " + msg + " "
	for _, e := range l.Entries {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

var _ logging.Logger = (*BufferLogger)(nil)
