package dberrors

import (
	"fmt"
	"testing"
)

func TestIs(t *testing.T) {
	err := New(ConnectionFailed, fmt.Errorf("dial tcp: refused"), "connect mysql")
	if !Is(err, ConnectionFailed) {
		t.Errorf("Is(err, ConnectionFailed) = false, want true")
	}
	if Is(err, QueryFailed) {
		t.Errorf("Is(err, QueryFailed) = true, want false")
	}
	if Is(fmt.Errorf("plain error"), ConnectionFailed) {
		t.Errorf("Is(plain error, ConnectionFailed) = true, want false")
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(MissingKey, nil, "table products has no primary key")
	want := "missing_key: table products has no primary key"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
