package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/authflow/step"
)

// Progress is the resumable position of a flow, stored under fp:<email>.
type Progress struct {
	Email     string        `json:"email"`
	Step      step.AuthStep `json:"step"`
	FlowID    string        `json:"flow_id,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

type ProgressErrors struct {
	EngineNotReady   error
	ProgressNotFound error
	StoreUnavailable error
}

// ProgressDeps captures persistence for flow progress.
type ProgressDeps struct {
	TTL time.Duration
	Now func() time.Time

	Get    func(context.Context, string) ([]byte, error)
	Set    func(context.Context, string, []byte, time.Duration) error
	Delete func(context.Context, string) error

	Errors ProgressErrors
}

func progressKey(email string) string {
	return "fp:" + email
}

// RunSaveProgress persists the flow position. Terminal steps clear it instead.
func RunSaveProgress(ctx context.Context, p Progress, deps ProgressDeps) error {
	if deps.Set == nil || deps.Delete == nil {
		return deps.Errors.EngineNotReady
	}
	if d, ok := step.Describe(p.Step); ok && d.Terminal {
		return RunClearProgress(ctx, p.Email, deps)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	p.Timestamp = deps.Now().UnixMilli()

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := deps.Set(ctx, progressKey(p.Email), data, deps.TTL); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	return nil
}

// RunLoadProgress returns the stored position for email.
func RunLoadProgress(ctx context.Context, email string, deps ProgressDeps) (Progress, error) {
	if deps.Get == nil {
		return Progress{}, deps.Errors.EngineNotReady
	}
	data, err := deps.Get(ctx, progressKey(email))
	if err != nil {
		return Progress{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if data == nil {
		return Progress{}, deps.Errors.ProgressNotFound
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil || p.Email != email {
		return Progress{}, deps.Errors.ProgressNotFound
	}
	return p, nil
}

// RunClearProgress removes the stored position for email.
func RunClearProgress(ctx context.Context, email string, deps ProgressDeps) error {
	if deps.Delete == nil {
		return deps.Errors.EngineNotReady
	}
	if err := deps.Delete(ctx, progressKey(email)); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	return nil
}
