package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return assertErr{} }

	cases := []struct {
		name   string
		checks map[string]Check
		path   string
		want   int
		failed []string
	}{
		{name: "healthz ignores checks", checks: map[string]Check{"manifest": fail}, path: "/healthz", want: 200},
		{name: "readyz no checks", path: "/readyz", want: 200},
		{name: "readyz ok", checks: map[string]Check{"data_dir": ok, "manifest": ok}, path: "/readyz", want: 200},
		{name: "readyz nil check skipped", checks: map[string]Check{"manifest": nil}, path: "/readyz", want: 200},
		{name: "readyz degraded", checks: map[string]Check{"data_dir": ok, "manifest": fail}, path: "/readyz", want: 503, failed: []string{"manifest"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			NewHealthHandler(tc.checks).Register(r)
			w := serve(r, tc.path)
			if w.Code != tc.want {
				t.Fatalf("want %d got %d", tc.want, w.Code)
			}
			if len(tc.failed) == 0 {
				return
			}
			var body struct {
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			for _, name := range tc.failed {
				if body.Checks[name] == "" {
					t.Fatalf("check %q should be reported, got %v", name, body.Checks)
				}
			}
		})
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "err" }
