package logging

import "testing"

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("nil logger must become NopLogger")
	}
	z := New("info", nil)
	if OrNop(z) != Logger(z) {
		t.Fatalf("non-nil logger must be returned as is")
	}
	// untyped nil through a Logger-typed helper stays nil and is safe to use
	var l Logger
	OrNop(l).Info("ignored", nil)
}
