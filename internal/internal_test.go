package internal

import (
	"strings"
	"testing"
)

func TestNewOTP(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		otp, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d): %v", digits, err)
		}
		if len(otp) != digits || strings.Trim(otp, "0123456789") != "" {
			t.Fatalf("NewOTP(%d) = %q", digits, otp)
		}
	}
	if _, err := NewOTP(3); err == nil {
		t.Fatal("expected error for 3 digits")
	}
}

func TestNewSecret(t *testing.T) {
	s, err := NewSecret(20)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 32 || strings.ContainsRune(s, '=') {
		t.Fatalf("unexpected secret %q", s)
	}
}

func TestClientTag(t *testing.T) {
	a := ClientTag("10.0.0.1", "curl/8")
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
	if a != ClientTag("10.0.0.1", "curl/8") {
		t.Fatal("client tag must be stable")
	}
	if a == ClientTag("10.0.0.2", "curl/8") {
		t.Fatal("different ip must change tag")
	}
	if ClientTag("", "") != "" {
		t.Fatal("empty inputs must yield empty tag")
	}
}
