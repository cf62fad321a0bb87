package rpc

import (
	"encoding/json"
	"testing"
)

func TestErrorCategories(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{&Error{Code: CodeSessionRequired, Message: "expired"}, "session_required"},
		{&Error{Code: CodeServerError, Message: "session required"}, "session_required"},
		{&Error{Code: CodeServerError, Message: "Session invalid or expired"}, "session_required"},
		{&Error{Code: CodeMethodNotFound, Message: "method not found: x"}, "method_not_found"},
		{&Error{Code: CodeInvalidParams, Message: "brief must be a non-empty string"}, "invalid_params"},
		{&Error{Code: CodeServerError, Message: "internal server error"}, "internal"},
	}
	for _, tc := range cases {
		if got := tc.err.Category(); got != tc.want {
			t.Fatalf("%v: expected %s got %s", tc.err, tc.want, got)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	var req Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1,"method":"rank_products","params":{"brief":"x"}}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	req.JSONRPC = "1.0"
	if err := req.Validate(); err == nil || err.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %v", err)
	}
	req = Request{JSONRPC: Version, ID: 2, Method: "x"}
	if err := req.Validate(); err == nil {
		t.Fatalf("expected missing params to fail")
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("unexpected short id %q", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Fatalf("unexpected short id %q", got)
	}
}
