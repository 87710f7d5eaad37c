package flows

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in, want, reason string
	}{
		{"  Alice@Example.COM ", "alice@example.com", ""},
		{"", "", "empty"},
		{"not-an-email", "", "malformed"},
		{"Alice <alice@example.com>", "", "malformed"},
		{"a@b", "a@b", ""},
	}
	for _, tc := range cases {
		got, failure := NormalizeEmail(tc.in)
		if got != tc.want || failure.Reason != tc.reason {
			t.Fatalf("NormalizeEmail(%q) = %q, %+v; want %q, %q", tc.in, got, failure, tc.want, tc.reason)
		}
	}
}

func TestValidateCode(t *testing.T) {
	if f := ValidateCode("123456", 6); !f.OK() {
		t.Fatalf("valid code rejected: %+v", f)
	}
	if f := ValidateCode(" 123456 ", 6); !f.OK() {
		t.Fatalf("surrounding space should be trimmed: %+v", f)
	}
	if f := ValidateCode("12345", 6); f.Reason != "length" {
		t.Fatalf("expected length failure, got %+v", f)
	}
	if f := ValidateCode("12a456", 6); f.Reason != "not_numeric" {
		t.Fatalf("expected not_numeric failure, got %+v", f)
	}
}

func TestNormalizePhone(t *testing.T) {
	got, f := NormalizePhone("+1 (415) 555-2671")
	if !f.OK() || got != "+14155552671" {
		t.Fatalf("got %q %+v", got, f)
	}
	for _, bad := range []string{"", "4155552671", "+0123456789", "+1415abc2671", "+123"} {
		if _, f := NormalizePhone(bad); f.OK() {
			t.Fatalf("NormalizePhone(%q) accepted", bad)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	policy := PasswordPolicy{MinLength: 8, MaxLength: 64, MinScore: 3}

	if f := ValidatePassword("", policy); f.Reason != "empty" {
		t.Fatalf("expected empty, got %+v", f)
	}
	if f := ValidatePassword("short", policy); f.Reason != "too_short" {
		t.Fatalf("expected too_short, got %+v", f)
	}
	if f := ValidatePassword("password", policy); f.Reason != "too_weak" {
		t.Fatalf("expected too_weak, got %+v", f)
	}
	if f := ValidatePassword("correct-horse-battery-staple-91!", policy, "a@x.com"); !f.OK() {
		t.Fatalf("strong password rejected: %+v", f)
	}
	if f := ValidatePassword("tab\there-is-long-enough", PasswordPolicy{}); f.Reason != "control_character" {
		t.Fatalf("expected control_character, got %+v", f)
	}
}
