package flows

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// InputFailure classifies rejected input for root-level mapping. A zero
// value means the input was accepted.
type InputFailure struct {
	Field  string
	Reason string
}

// OK reports whether the input was accepted.
func (f InputFailure) OK() bool {
	return f.Reason == ""
}

const maxEmailLength = 254

// NormalizeEmail trims and lowercases raw and checks it is a bare address.
func NormalizeEmail(raw string) (string, InputFailure) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", InputFailure{Field: "email", Reason: "empty"}
	}
	if len(email) > maxEmailLength {
		return "", InputFailure{Field: "email", Reason: "too_long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", InputFailure{Field: "email", Reason: "malformed"}
	}
	return email, InputFailure{}
}

// ValidateCode checks a numeric one-time code of exactly digits characters.
func ValidateCode(code string, digits int) InputFailure {
	code = strings.TrimSpace(code)
	if code == "" {
		return InputFailure{Field: "code", Reason: "empty"}
	}
	if len(code) != digits {
		return InputFailure{Field: "code", Reason: "length"}
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return InputFailure{Field: "code", Reason: "not_numeric"}
		}
	}
	return InputFailure{}
}

// NormalizePhone strips common separators and requires E.164 form.
func NormalizePhone(raw string) (string, InputFailure) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			return "", InputFailure{Field: "phone", Reason: "malformed"}
		}
	}
	phone := b.String()
	if phone == "" {
		return "", InputFailure{Field: "phone", Reason: "empty"}
	}
	if phone[0] != '+' || len(phone) < 9 || len(phone) > 16 || phone[1] == '0' {
		return "", InputFailure{Field: "phone", Reason: "malformed"}
	}
	return phone, InputFailure{}
}

// PasswordPolicy bounds acceptable new passwords.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
	// MinScore is the minimum zxcvbn score (0-4). Zero disables the check.
	MinScore int
}

// ValidatePassword applies policy to a new password. userInputs (typically
// the email) are penalised by the strength estimator.
func ValidatePassword(password string, policy PasswordPolicy, userInputs ...string) InputFailure {
	n := utf8.RuneCountInString(password)
	if n == 0 {
		return InputFailure{Field: "password", Reason: "empty"}
	}
	if policy.MinLength > 0 && n < policy.MinLength {
		return InputFailure{Field: "password", Reason: "too_short"}
	}
	if policy.MaxLength > 0 && n > policy.MaxLength {
		return InputFailure{Field: "password", Reason: "too_long"}
	}
	for _, r := range password {
		if unicode.IsControl(r) {
			return InputFailure{Field: "password", Reason: "control_character"}
		}
	}
	if policy.MinScore > 0 {
		minScore := min(policy.MinScore, 4)
		if zxcvbn.PasswordStrength(password, userInputs).Score < minScore {
			return InputFailure{Field: "password", Reason: "too_weak"}
		}
	}
	return InputFailure{}
}
