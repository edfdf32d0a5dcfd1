package remote

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}, ErrAccessDenied},
		{"forbidden", &smithy.GenericAPIError{Code: "403"}, ErrAccessDenied},
		{"no such key", fmt.Errorf("op: %w", &smithy.GenericAPIError{Code: "NoSuchKey"}), ErrNotFound},
		{"not found", &smithy.GenericAPIError{Code: "NotFound"}, ErrNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classify(c.err)
			if !errors.Is(got, c.want) {
				t.Fatalf("classify(%v)=%v, want %v", c.err, got, c.want)
			}
			var ae smithy.APIError
			if !errors.As(got, &ae) {
				t.Fatalf("cause lost: %v", got)
			}
		})
	}
	plain := errors.New("timeout")
	if got := classify(plain); got != plain {
		t.Fatalf("unrelated errors must pass through, got %v", got)
	}
	if classify(nil) != nil {
		t.Fatalf("classify(nil) != nil")
	}
}
