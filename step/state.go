package step

// Status is the directory-owned lifecycle state of an account.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusInactive
	StatusSuspended
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// VerificationState is a read-only snapshot of a user's verification status
// as reported by the user directory. An empty PhoneNumber means no phone is
// on file.
type VerificationState struct {
	Exists           bool
	EmailVerified    bool
	PhoneNumber      string
	PhoneVerified    bool
	MFAEnabled       bool
	MFASetupComplete bool
	Status           Status
}

// HasPhone reports whether a phone number is on file.
func (v VerificationState) HasPhone() bool {
	return v.PhoneNumber != ""
}

type rule struct {
	met  func(VerificationState) bool
	step AuthStep
}

// Evaluated in order; the first unmet rule wins. Name collection is a profile
// concern and never appears here, so NameSetup is not produced by NextStep.
var rules = []rule{
	{met: func(v VerificationState) bool { return v.EmailVerified }, step: EmailVerify},
	{met: func(v VerificationState) bool { return v.HasPhone() && v.PhoneVerified }, step: PhoneSetup},
	{met: func(v VerificationState) bool { return v.MFAEnabled && v.MFASetupComplete }, step: MfaSetup},
}

// NextStep returns the first step whose requirement the state does not meet,
// or Complete when every requirement is met.
func NextStep(v VerificationState) AuthStep {
	for _, r := range rules {
		if !r.met(v) {
			return r.step
		}
	}
	return Complete
}

// NeedsResend reports whether a user resolved to EmailVerify is a pending or
// abandoned signup whose confirmation code should be re-sent.
func NeedsResend(v VerificationState) bool {
	return v.Exists && !v.EmailVerified && v.Status == StatusPending
}
