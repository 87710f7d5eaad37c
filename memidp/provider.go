package memidp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/password"
)

// Purpose names the channel a code was issued for.
type Purpose string

const (
	PurposeSignUp Purpose = "signup"
	PurposeReset  Purpose = "reset"
	PurposePhone  Purpose = "phone"
	PurposeMFA    Purpose = "mfa"
)

// ErrUnavailable is returned by every call while the provider is marked
// unavailable. The engine treats it as a transport failure.
var ErrUnavailable = errors.New("memidp: provider unavailable")

// Options configures a Provider.
type Options struct {
	CodeDigits int
	// RequireMFA makes sign-in demand authenticator enrollment from users
	// without MFA.
	RequireMFA bool
	Issuer     string
	OnCode     func(email string, purpose Purpose, code string)
	// Hasher stores passwords. Nil uses password.FastConfig.
	Hasher *password.Argon2
	// Now drives authenticator codes. Nil uses time.Now.
	Now func() time.Time
}

type account struct {
	passwordHash  string
	confirmed     bool
	phone         string
	phoneVerified bool
	mfaSecret     string
	mfaEnabled    bool
	totpUsed      int64
	signedIn      bool
}

type codeKey struct {
	email   string
	purpose Purpose
}

// Provider is an in-memory authflow.IdentityProvider. It is safe for
// concurrent use.
type Provider struct {
	opts Options

	mu       sync.Mutex
	accounts map[string]*account
	codes    map[codeKey]string

	unavailable atomic.Bool
}

var _ authflow.IdentityProvider = (*Provider)(nil)

func New(opts Options) *Provider {
	if opts.CodeDigits == 0 {
		opts.CodeDigits = 6
	}
	if opts.Issuer == "" {
		opts.Issuer = "authflow"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Hasher == nil {
		h, err := password.NewArgon2(password.FastConfig())
		if err != nil {
			panic(err)
		}
		opts.Hasher = h
	}
	return &Provider{
		opts:     opts,
		accounts: make(map[string]*account),
		codes:    make(map[codeKey]string),
	}
}

// SetUnavailable simulates a provider outage.
func (p *Provider) SetUnavailable(v bool) {
	p.unavailable.Store(v)
}

// LastCode returns the most recent unused code issued to email for purpose.
func (p *Provider) LastCode(email string, purpose Purpose) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	code, ok := p.codes[codeKey{email, purpose}]
	return code, ok
}

// SignedIn reports whether email completed a sign-in and has not signed out.
func (p *Provider) SignedIn(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[email]
	return ok && acct.signedIn
}

func (p *Provider) check() error {
	if p.unavailable.Load() {
		return ErrUnavailable
	}
	return nil
}

// issueLocked stores a fresh code and hands it to OnCode after unlocking.
func (p *Provider) issueLocked(email string, purpose Purpose) (func(), error) {
	code, err := internal.NewOTP(p.opts.CodeDigits)
	if err != nil {
		return nil, err
	}
	p.codes[codeKey{email, purpose}] = code
	return func() {
		if p.opts.OnCode != nil {
			p.opts.OnCode(email, purpose, code)
		}
	}, nil
}

// consumeLocked checks code and removes it on success.
func (p *Provider) consumeLocked(email string, purpose Purpose, code string) error {
	key := codeKey{email, purpose}
	want, ok := p.codes[key]
	if !ok {
		return authflow.ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(code)) != 1 {
		return authflow.ErrCodeMismatch
	}
	delete(p.codes, key)
	return nil
}

func (p *Provider) accountLocked(email string) (*account, error) {
	acct, ok := p.accounts[email]
	if !ok {
		return nil, fmt.Errorf("%w: unknown user", authflow.ErrInvalidCredentials)
	}
	return acct, nil
}

// verify checks pw against the stored hash outside the lock and re-hashes
// it when the hasher's parameters have grown.
func (p *Provider) verify(email, pw string) (bool, error) {
	p.mu.Lock()
	acct, err := p.accountLocked(email)
	if err != nil {
		p.mu.Unlock()
		return false, err
	}
	stored := acct.passwordHash
	p.mu.Unlock()

	ok, err := p.opts.Hasher.Verify(pw, stored)
	if err != nil || !ok {
		return false, err
	}
	if stale, _ := p.opts.Hasher.NeedsRehash(stored); stale {
		if fresh, err := p.opts.Hasher.Hash(pw); err == nil {
			p.mu.Lock()
			if acct.passwordHash == stored {
				acct.passwordHash = fresh
			}
			p.mu.Unlock()
		}
	}
	return true, nil
}

func (p *Provider) SignUp(ctx context.Context, email, pw string) error {
	if err := p.check(); err != nil {
		return err
	}
	hash, err := p.opts.Hasher.Hash(pw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return fmt.Errorf("%w: account exists", authflow.ErrDuplicateUser)
	}
	p.accounts[email] = &account{passwordHash: hash}
	notify, err := p.issueLocked(email, PurposeSignUp)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	notify()
	return nil
}

func (p *Provider) ConfirmSignUp(ctx context.Context, email, code string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.accountLocked(email)
	if err != nil {
		return err
	}
	if err := p.consumeLocked(email, PurposeSignUp, code); err != nil {
		return err
	}
	acct.confirmed = true
	return nil
}

func (p *Provider) ResendSignUpCode(ctx context.Context, email string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	acct, err := p.accountLocked(email)
	if err == nil && acct.confirmed {
		err = errors.New("memidp: account already confirmed")
	}
	var notify func()
	if err == nil {
		notify, err = p.issueLocked(email, PurposeSignUp)
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	notify()
	return nil
}

func (p *Provider) SignIn(ctx context.Context, email, pw string) (authflow.SignInResult, error) {
	if err := p.check(); err != nil {
		return authflow.SignInResult{}, err
	}
	ok, err := p.verify(email, pw)
	if err != nil {
		return authflow.SignInResult{}, err
	}
	p.mu.Lock()
	acct := p.accounts[email]
	if !ok || !acct.confirmed {
		p.mu.Unlock()
		return authflow.SignInResult{}, authflow.ErrInvalidCredentials
	}

	switch {
	case acct.mfaEnabled:
		notify, err := p.issueLocked(email, PurposeMFA)
		p.mu.Unlock()
		if err != nil {
			return authflow.SignInResult{}, err
		}
		notify()
		return authflow.SignInResult{Outcome: authflow.SignInMFAChallenge}, nil
	case p.opts.RequireMFA:
		details, notify, err := p.setupLocked(email, acct)
		p.mu.Unlock()
		if err != nil {
			return authflow.SignInResult{}, err
		}
		notify()
		return authflow.SignInResult{Outcome: authflow.SignInMFASetupRequired, MFASetup: &details}, nil
	default:
		acct.signedIn = true
		p.mu.Unlock()
		return authflow.SignInResult{Outcome: authflow.SignInDone}, nil
	}
}

func (p *Provider) ConfirmSignIn(ctx context.Context, email, code string) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.accountLocked(email)
	if err != nil {
		return false, err
	}
	if err := p.mfaCodeLocked(email, acct, code); err != nil {
		if errors.Is(err, authflow.ErrCodeMismatch) {
			return false, nil
		}
		return false, err
	}
	acct.signedIn = true
	return true, nil
}

func (p *Provider) SignOut(ctx context.Context, email string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if acct, ok := p.accounts[email]; ok {
		acct.signedIn = false
	}
	return nil
}

func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	_, err := p.accountLocked(email)
	var notify func()
	if err == nil {
		notify, err = p.issueLocked(email, PurposeReset)
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	notify()
	return nil
}

func (p *Provider) ConfirmResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := p.check(); err != nil {
		return err
	}
	hash, err := p.opts.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.accountLocked(email)
	if err != nil {
		return err
	}
	if err := p.consumeLocked(email, PurposeReset, code); err != nil {
		return err
	}
	acct.passwordHash = hash
	acct.signedIn = false
	return nil
}

func (p *Provider) UpdatePhone(ctx context.Context, email, phone string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	acct, err := p.accountLocked(email)
	var notify func()
	if err == nil {
		acct.phone = phone
		acct.phoneVerified = false
		notify, err = p.issueLocked(email, PurposePhone)
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	notify()
	return nil
}

func (p *Provider) ConfirmPhone(ctx context.Context, email, code string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.accountLocked(email)
	if err != nil {
		return err
	}
	if err := p.consumeLocked(email, PurposePhone, code); err != nil {
		return err
	}
	acct.phoneVerified = true
	return nil
}

func (p *Provider) SetupMFA(ctx context.Context, email string) (authflow.MFASetupDetails, error) {
	if err := p.check(); err != nil {
		return authflow.MFASetupDetails{}, err
	}
	p.mu.Lock()
	acct, err := p.accountLocked(email)
	if err != nil {
		p.mu.Unlock()
		return authflow.MFASetupDetails{}, err
	}
	details, notify, err := p.setupLocked(email, acct)
	p.mu.Unlock()
	if err != nil {
		return authflow.MFASetupDetails{}, err
	}
	notify()
	return details, nil
}

// setupLocked issues an authenticator secret. The outbox code stands in for
// the first code the authenticator would display.
func (p *Provider) setupLocked(email string, acct *account) (authflow.MFASetupDetails, func(), error) {
	secret, err := internal.NewSecret(20)
	if err != nil {
		return authflow.MFASetupDetails{}, nil, err
	}
	acct.mfaSecret = secret
	acct.totpUsed = 0
	notify, err := p.issueLocked(email, PurposeMFA)
	if err != nil {
		return authflow.MFASetupDetails{}, nil, err
	}
	return authflow.MFASetupDetails{
		Secret: secret,
		URI:    provisionURI(p.opts.Issuer, email, secret, p.opts.CodeDigits),
	}, notify, nil
}

// mfaCodeLocked accepts either the outbox code or a current authenticator
// code. Each authenticator period is accepted once.
func (p *Provider) mfaCodeLocked(email string, acct *account, code string) error {
	err := p.consumeLocked(email, PurposeMFA, code)
	if err == nil || acct.mfaSecret == "" {
		return err
	}
	ok, counter := verifyTOTP(acct.mfaSecret, code, p.opts.Now(), p.opts.CodeDigits)
	if !ok || counter <= acct.totpUsed {
		return err
	}
	acct.totpUsed = counter
	delete(p.codes, codeKey{email, PurposeMFA})
	return nil
}

func (p *Provider) VerifyMFASetup(ctx context.Context, email, code string) error {
	if err := p.check(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.accountLocked(email)
	if err != nil {
		return err
	}
	if acct.mfaSecret == "" {
		return fmt.Errorf("%w: no pending enrollment", authflow.ErrCodeExpired)
	}
	if err := p.mfaCodeLocked(email, acct, code); err != nil {
		return err
	}
	acct.mfaEnabled = true
	acct.signedIn = true
	return nil
}
