package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/step"
)

type flowContextKey struct{}

// FlowFromContext returns the flow attached by ResumeFlow.
func FlowFromContext(ctx context.Context) (*authflow.Flow, bool) {
	f, ok := ctx.Value(flowContextKey{}).(*authflow.Flow)
	return f, ok
}

// ContextWithFlow attaches f for FlowFromContext. Servers that keep live
// flows in memory use it to skip Resume.
func ContextWithFlow(ctx context.Context, f *authflow.Flow) context.Context {
	return context.WithValue(ctx, flowContextKey{}, f)
}

// Guard rejects requests whose identifier is currently denied op by the
// limiter. identify extracts the identifier, usually the email; requests
// without one pass through. Guard only reads limiter state.
func Guard(engine *authflow.Engine, op step.Operation, identify func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			identifier := ""
			if identify != nil {
				identifier = identify(r)
			}
			if identifier == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := engine.IsAttemptAllowed(r.Context(), identifier, op)
			if err != nil {
				WriteError(w, err)
				return
			}
			if !d.Allowed {
				WriteError(w, &authflow.RateLimitError{Operation: op, Delay: d.Delay, Reason: d.Reason})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ResumeFlow reopens the flow named by the bearer resume token and attaches
// it to the request context.
func ResumeFlow(engine *authflow.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			f, _, err := engine.Resume(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithFlow(r.Context(), f)))
		})
	}
}

// WriteError writes the status code matching err. Rate-limit errors carry a
// Retry-After header in whole seconds.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if delay, ok := authflow.RetryAfter(err); ok {
		w.Header().Set("Retry-After", retryAfterSeconds(delay))
	}
	http.Error(w, http.StatusText(status), status)
}

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, authflow.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, authflow.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, authflow.ErrInvalidCredentials),
		errors.Is(err, authflow.ErrCodeMismatch),
		errors.Is(err, authflow.ErrCodeExpired),
		errors.Is(err, authflow.ErrTokenInvalid),
		errors.Is(err, authflow.ErrProgressNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, authflow.ErrAccountSuspended):
		return http.StatusForbidden
	case errors.Is(err, authflow.ErrStepMismatch),
		errors.Is(err, authflow.ErrBackNotAllowed),
		errors.Is(err, authflow.ErrDuplicateUser),
		errors.Is(err, authflow.ErrFlowClosed):
		return http.StatusConflict
	case errors.Is(err, authflow.ErrProviderUnavailable),
		errors.Is(err, authflow.ErrStoreUnavailable),
		errors.Is(err, authflow.ErrEngineNotReady),
		errors.Is(err, authflow.ErrResumeUnsupported):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
