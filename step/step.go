package step

import (
	"errors"
	"strings"
)

// AuthStep is a position in the authentication flow. Ordering is not linear:
// the next step is computed by [NextStep] or by the orchestrator, never
// incremented.
type AuthStep uint8

const (
	EmailEntry AuthStep = iota
	Password
	PasswordSetup
	EmailVerify
	Signin
	NameSetup
	PhoneSetup
	PhoneVerify
	MfaSetup
	MfaVerify
	PasswordReset
	PasswordResetVerify
	PasswordResetConfirm
	Complete
	stepCount
)

// Operation names the rate-limited action performed when a step is submitted.
// Values match the rate limiter's operation types.
type Operation string

const (
	OpNone           Operation = ""
	OpEmailCheck     Operation = "email_check"
	OpPasswordVerify Operation = "password_verify"
	OpMFAVerify      Operation = "mfa_verify"
	OpPhoneVerify    Operation = "phone_verify"
	OpEmailVerify    Operation = "email_verify"
)

// ErrUnknownStep is returned by [Parse] for names outside the enumeration.
var ErrUnknownStep = errors.New("unknown auth step")

// Descriptor is the table row for one step.
type Descriptor struct {
	Step      AuthStep
	Name      string
	Operation Operation
	// Unsafe steps consume a one-shot code or are terminal; re-entering them
	// through back-navigation could desynchronize provider state.
	Unsafe   bool
	Terminal bool
}

var descriptors = [stepCount]Descriptor{
	EmailEntry:           {Step: EmailEntry, Name: "email_entry", Operation: OpEmailCheck},
	Password:             {Step: Password, Name: "password", Operation: OpPasswordVerify},
	PasswordSetup:        {Step: PasswordSetup, Name: "password_setup"},
	EmailVerify:          {Step: EmailVerify, Name: "email_verify", Operation: OpEmailVerify, Unsafe: true},
	Signin:               {Step: Signin, Name: "signin", Operation: OpPasswordVerify},
	NameSetup:            {Step: NameSetup, Name: "name_setup"},
	PhoneSetup:           {Step: PhoneSetup, Name: "phone_setup"},
	PhoneVerify:          {Step: PhoneVerify, Name: "phone_verify", Operation: OpPhoneVerify, Unsafe: true},
	MfaSetup:             {Step: MfaSetup, Name: "mfa_setup", Operation: OpMFAVerify},
	MfaVerify:            {Step: MfaVerify, Name: "mfa_verify", Operation: OpMFAVerify, Unsafe: true},
	PasswordReset:        {Step: PasswordReset, Name: "password_reset", Operation: OpEmailCheck},
	PasswordResetVerify:  {Step: PasswordResetVerify, Name: "password_reset_verify"},
	PasswordResetConfirm: {Step: PasswordResetConfirm, Name: "password_reset_confirm", Operation: OpPasswordVerify},
	Complete:             {Step: Complete, Name: "complete", Unsafe: true, Terminal: true},
}

// Describe returns the table row for s. Unknown steps yield a zero
// Descriptor and false.
func Describe(s AuthStep) (Descriptor, bool) {
	if s >= stepCount {
		return Descriptor{}, false
	}
	return descriptors[s], true
}

// Valid reports whether s is inside the enumeration.
func (s AuthStep) Valid() bool {
	return s < stepCount
}

func (s AuthStep) String() string {
	if d, ok := Describe(s); ok {
		return d.Name
	}
	return "unknown"
}

// Operation returns the rate-limited operation for s, or OpNone.
func (s AuthStep) Operation() Operation {
	d, _ := Describe(s)
	return d.Operation
}

// MarshalText encodes s by name so persisted progress survives enum reordering.
func (s AuthStep) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, ErrUnknownStep
	}
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *AuthStep) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Parse resolves a step name produced by String.
func Parse(name string) (AuthStep, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, d := range descriptors {
		if d.Name == name {
			return d.Step, nil
		}
	}
	return EmailEntry, ErrUnknownStep
}

// IsStepSafe reports whether a user may navigate away from and back into s.
// Code-consuming and terminal steps are unsafe.
func IsStepSafe(s AuthStep) bool {
	d, ok := Describe(s)
	if !ok {
		return false
	}
	return !d.Unsafe
}

// All returns every step in declaration order.
func All() []AuthStep {
	out := make([]AuthStep, 0, stepCount)
	for s := AuthStep(0); s < stepCount; s++ {
		out = append(out, s)
	}
	return out
}
