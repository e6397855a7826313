package validation

import (
	"strings"
	"testing"

	"github.com/hitoshi/infomate/internal/model"
)

func TestIsEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{email: "alice@x.com", want: true},
		{email: "bob.smith+tag@example.co.jp", want: true},
		{email: "no-at-sign", want: false},
		{email: "missing@tld", want: false},
		{email: "@example.com", want: false},
		{email: "", want: false},
	}

	for _, tt := range tests {
		if got := IsEmail(tt.email); got != tt.want {
			t.Errorf("IsEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@X.COM "); got != "alice@x.com" {
		t.Errorf("NormalizeEmail() = %q, want %q", got, "alice@x.com")
	}
}

func TestCollector_NoErrors_ReturnsNil(t *testing.T) {
	var c Collector
	c.Require("名前", "Alice")
	c.Email("alice@x.com")
	c.Password("パスワード", "secret1")

	if err := c.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
}

func TestCollector_AggregatesAllMessages(t *testing.T) {
	var c Collector
	c.Require("名前", "  ")
	c.Email("broken")
	c.Password("パスワード", "123")
	c.Check(false, "年齢は0から150の間で入力してください")

	err := c.Err()
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr, ok := model.AsAPIError(err)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
	}
	if len(apiErr.Details) != 4 {
		t.Errorf("len(Details) = %d, want 4: %v", len(apiErr.Details), apiErr.Details)
	}
}

func TestCollector_Password_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "6文字は許可", password: "abcdef", wantErr: false},
		{name: "5文字は拒否", password: "abcde", wantErr: true},
		{name: "72バイトは許可", password: strings.Repeat("a", 72), wantErr: false},
		{name: "73バイトは拒否", password: strings.Repeat("a", 73), wantErr: true},
		{name: "マルチバイト6文字は許可", password: "あいうえおか", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Collector
			c.Password("パスワード", tt.password)
			if got := c.Err() != nil; got != tt.wantErr {
				t.Errorf("Err() != nil = %v, want %v", got, tt.wantErr)
			}
		})
	}
}

func TestCollector_Email_EmptyAndMalformedDiffer(t *testing.T) {
	var empty, malformed Collector
	empty.Email("")
	malformed.Email("nope")

	e1, _ := model.AsAPIError(empty.Err())
	e2, _ := model.AsAPIError(malformed.Err())
	if e1 == nil || e2 == nil {
		t.Fatal("expected errors for both inputs")
	}
	if e1.Details[0] == e2.Details[0] {
		t.Errorf("expected distinct messages, both were %q", e1.Details[0])
	}
}
