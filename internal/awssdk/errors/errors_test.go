package errors

import (
	sterrors "errors"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
)

type apiErr struct{ code string }

func (e apiErr) Error() string                 { return e.code }
func (e apiErr) ErrorCode() string             { return e.code }
func (e apiErr) ErrorMessage() string          { return e.code }
func (e apiErr) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var _ smithy.APIError = (*apiErr)(nil)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   error
		want string
	}{
		{apiErr{"ConditionalCheckFailedException"}, "conflict"},
		{apiErr{"TransactionCanceledException"}, "conflict"},
		{apiErr{"UsernameExistsException"}, "conflict"},
		{apiErr{"ProvisionedThroughputExceededException"}, "retryable"},
		{apiErr{"TooManyRequestsException"}, "retryable"},
		{apiErr{"ResourceNotFoundException"}, "not found"},
		{apiErr{"UserNotFoundException"}, "not found"},
		{sterrors.New("boom"), "op error"},
	}
	for _, tt := range tests {
		got := Classify(tt.in)
		if got == nil || !sterrors.Is(got, tt.in) {
			t.Fatalf("classify(%v) lost the cause: %v", tt.in, got)
		}
		if !strings.Contains(got.Error(), tt.want) {
			t.Fatalf("classify(%v) => %v; want contains %q", tt.in, got, tt.want)
		}
	}
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) should be nil")
	}
}

func TestCodeAndIsNotFound(t *testing.T) {
	if Code(apiErr{"UserNotFoundException"}) != "UserNotFoundException" {
		t.Fatalf("Code")
	}
	if Code(sterrors.New("plain")) != "" {
		t.Fatalf("Code on plain error")
	}
	if !IsNotFound(apiErr{"ResourceNotFoundException"}) || IsNotFound(apiErr{"ThrottlingException"}) {
		t.Fatalf("IsNotFound")
	}
}
