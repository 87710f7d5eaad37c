package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Recovery.FindByEmail != nil && s.deps.Attempt.IsAttemptAllowed != nil
}

func (s Service) SmartCheck(ctx context.Context, email string) (RecoveryResult, error) {
	return RunSmartCheck(ctx, email, s.deps.Recovery)
}

func (s Service) GuardedAttempt(ctx context.Context, req AttemptRequest, call func(context.Context) error) error {
	return RunGuardedAttempt(ctx, req, call, s.deps.Attempt)
}

func (s Service) SaveProgress(ctx context.Context, p Progress) error {
	return RunSaveProgress(ctx, p, s.deps.Progress)
}

func (s Service) LoadProgress(ctx context.Context, email string) (Progress, error) {
	return RunLoadProgress(ctx, email, s.deps.Progress)
}
