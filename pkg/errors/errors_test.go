package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class Class
		fatal bool
	}{
		{"connectivity sentinel", ErrConnectivity, ClassConnectivity, true},
		{"wrapped connectivity", fmt.Errorf("querying: %w", ErrConnectivity), ClassConnectivity, true},
		{"app error transient", New(ErrTransient, "deadlock victim"), ClassTransient, false},
		{"wrap keeps cause", Wrap(ErrBatchParse, errors.New("bad proto"), "feed"), ClassBatch, false},
		{"precondition", Newf(ErrPreconditionFailed, "cache age %d", 200), ClassPrecondition, false},
		{"row level", ErrMalformedRow, ClassRowLevel, false},
		{"canceled", fmt.Errorf("cycle: %w", context.Canceled), ClassCanceled, false},
		{"unknown", errors.New("boom"), ClassUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.class {
				t.Errorf("Classify = %s, want %s", got, tt.class)
			}
			if got := Fatal(tt.err); got != tt.fatal {
				t.Errorf("Fatal = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestWrapPreservesBothChains(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(ErrConnectivity, cause, "redis")
	if !errors.Is(err, ErrConnectivity) {
		t.Error("sentinel lost")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost")
	}
	if Fatal(nil) {
		t.Error("nil error must not be fatal")
	}
}
