package rate

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/internal/attack"
	"github.com/MrEthical07/authflow/step"
	"github.com/MrEthical07/authflow/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const email = "a@x.com"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func noJitter() time.Duration { return 0 }

type harness struct {
	limiter *Limiter
	clock   *fakeClock
	store   *countingStore
}

// countingStore wraps a Memory store and counts writes.
type countingStore struct {
	*store.Memory
	writes int
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.writes++
	return c.Memory.Set(ctx, key, value, ttl)
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.writes++
	return c.Memory.Delete(ctx, key)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := &countingStore{Memory: store.NewMemory(store.WithClock(clock.Now))}
	logger := zaptest.NewLogger(t)
	detector := attack.New(s, attack.DefaultConfig(), attack.WithClock(clock.Now), attack.WithLogger(logger))
	return &harness{
		limiter: New(s, detector, Options{Now: clock.Now, Jitter: noJitter, Logger: logger}),
		clock:   clock,
		store:   s,
	}
}

func (h *harness) fail(t *testing.T, op step.Operation) {
	t.Helper()
	require.NoError(t, h.limiter.RecordAttempt(context.Background(), email, op, false, "test"))
}

func (h *harness) check(t *testing.T, op step.Operation) Decision {
	t.Helper()
	d, err := h.limiter.IsAttemptAllowed(context.Background(), email, op)
	require.NoError(t, err)
	return d
}

func (h *harness) snapshot(t *testing.T, op step.Operation) Record {
	t.Helper()
	rec, err := h.limiter.Snapshot(context.Background(), email, op)
	require.NoError(t, err)
	return rec
}

func TestLockoutAfterMaxAttemptsForEveryOperation(t *testing.T) {
	for _, op := range Operations() {
		t.Run(string(op), func(t *testing.T) {
			h := newHarness(t)
			policy, _ := PolicyFor(op)
			for i := uint32(0); i < policy.MaxAttempts; i++ {
				h.fail(t, op)
				h.clock.Advance(policy.MaxDelay)
			}
			d := h.check(t, op)
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonLocked, d.Reason)
			assert.Positive(t, d.Delay)
		})
	}
}

func TestPasswordVerifyScenario(t *testing.T) {
	h := newHarness(t)
	op := step.OpPasswordVerify

	var lastDelay time.Duration
	for attempt := 1; attempt <= 4; attempt++ {
		h.fail(t, op)
		rec := h.snapshot(t, op)
		assert.Greater(t, rec.CurrentDelay, lastDelay, "attempt %d", attempt)
		lastDelay = rec.CurrentDelay

		d := h.check(t, op)
		assert.False(t, d.Allowed, "inside backoff after attempt %d", attempt)
		assert.Equal(t, ReasonBackoff, d.Reason)

		h.clock.Advance(rec.CurrentDelay)
		d = h.check(t, op)
		assert.True(t, d.Allowed, "after backoff of attempt %d", attempt)
	}

	lockedAt := h.clock.Now()
	h.fail(t, op)
	rec := h.snapshot(t, op)
	assert.True(t, rec.IsLocked)
	assert.EqualValues(t, 5, rec.TotalFailedAttempts)
	assert.True(t, rec.LockoutEndsAt.Equal(lockedAt.Add(30*time.Minute)))
	assert.False(t, rec.NextAttemptAllowedAt.After(rec.LockoutEndsAt))

	h.clock.Advance(10 * time.Minute)
	d := h.check(t, op)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLocked, d.Reason)
	assert.Equal(t, 20*time.Minute, d.Delay)
}

func TestEmailCheckAttackAndLockoutTogether(t *testing.T) {
	h := newHarness(t)
	op := step.OpEmailCheck
	for i := 0; i < 11; i++ {
		h.fail(t, op)
		h.clock.Advance(time.Second)
	}

	under, err := h.limiter.IsUnderAttack(context.Background(), email)
	require.NoError(t, err)
	assert.True(t, under)
	assert.True(t, h.snapshot(t, op).IsLocked)

	d := h.check(t, op)
	assert.False(t, d.Allowed)
}

func TestAttackBlocksBeforeOwnBudget(t *testing.T) {
	h := newHarness(t)
	op := step.OpEmailCheck
	for i := 0; i < 5; i++ {
		h.fail(t, op)
		h.clock.Advance(31 * time.Second)
	}

	rec := h.snapshot(t, op)
	require.False(t, rec.IsLocked)
	require.False(t, h.clock.Now().Before(rec.NextAttemptAllowedAt))

	d := h.check(t, op)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAttack, d.Reason)
	assert.Equal(t, 60*time.Second, d.Delay, "level 1 doubles max delay")
}

func TestSuccessResetsRecord(t *testing.T) {
	h := newHarness(t)
	op := step.OpPasswordVerify
	for i := 0; i < 3; i++ {
		h.fail(t, op)
		h.clock.Advance(5 * time.Second)
	}
	require.NoError(t, h.limiter.RecordAttempt(context.Background(), email, op, true, "test"))

	rec := h.snapshot(t, op)
	assert.True(t, rec.IsZero())
	assert.True(t, h.check(t, op).Allowed)
}

func TestSuccessClearsActiveLockout(t *testing.T) {
	h := newHarness(t)
	op := step.OpMFAVerify
	for i := 0; i < 3; i++ {
		h.fail(t, op)
		h.clock.Advance(2 * time.Second)
	}
	require.True(t, h.snapshot(t, op).IsLocked)

	require.NoError(t, h.limiter.RecordAttempt(context.Background(), email, op, true, "test"))
	assert.False(t, h.snapshot(t, op).IsLocked)
	assert.True(t, h.check(t, op).Allowed)
}

func TestExpiredLockoutReadsAsZero(t *testing.T) {
	h := newHarness(t)
	op := step.OpMFAVerify
	for i := 0; i < 3; i++ {
		h.fail(t, op)
		h.clock.Advance(2 * time.Second)
	}
	h.clock.Advance(61 * time.Minute)

	assert.True(t, h.snapshot(t, op).IsZero())
	assert.True(t, h.check(t, op).Allowed)

	h.fail(t, op)
	assert.EqualValues(t, 1, h.snapshot(t, op).TotalFailedAttempts, "counting restarts after expiry")
}

func TestFailuresWhileLockedDoNotExtendLockout(t *testing.T) {
	h := newHarness(t)
	op := step.OpPhoneVerify
	for i := 0; i < 3; i++ {
		h.fail(t, op)
	}
	first := h.snapshot(t, op).LockoutEndsAt

	h.clock.Advance(time.Minute)
	h.fail(t, op)
	rec := h.snapshot(t, op)
	assert.True(t, rec.LockoutEndsAt.Equal(first))
	assert.EqualValues(t, 4, rec.TotalFailedAttempts)
}

func TestBackoffIsMonotonicAndCapped(t *testing.T) {
	cases := []struct {
		op   step.Operation
		want []time.Duration
	}{
		{step.OpPasswordVerify, []time.Duration{1, 2, 4, 8, 16, 32, 60, 60}},
		{step.OpMFAVerify, []time.Duration{1, 3, 9, 27, 81, 120, 120}},
		{step.OpEmailCheck, []time.Duration{1, 2, 4, 8, 16, 30, 30}},
	}
	for _, tc := range cases {
		policy, ok := PolicyFor(tc.op)
		require.True(t, ok)
		for i, want := range tc.want {
			assert.Equal(t, want*time.Second, policy.Backoff(uint32(i+1)), "%s failure %d", tc.op, i+1)
		}
	}
}

func TestJitteredDelayStaysNonDecreasing(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	s := store.NewMemory(store.WithClock(clock.Now))
	l := New(s, attack.New(s, attack.Config{}, attack.WithClock(clock.Now)), Options{Now: clock.Now})

	var prev time.Duration
	for i := 0; i < 5; i++ {
		require.NoError(t, l.RecordAttempt(context.Background(), email, step.OpPasswordVerify, false, ""))
		rec, err := l.Snapshot(context.Background(), email, step.OpPasswordVerify)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.CurrentDelay+time.Second, prev)
		assert.LessOrEqual(t, rec.CurrentDelay, 60*time.Second)
		prev = rec.CurrentDelay
		clock.Advance(rec.CurrentDelay)
	}
}

func TestAttackDelayScaling(t *testing.T) {
	policy, _ := PolicyFor(step.OpMFAVerify)
	assert.Equal(t, 120*time.Second, policy.AttackDelay(0))
	assert.Equal(t, 240*time.Second, policy.AttackDelay(1))
	assert.Equal(t, 5*time.Minute, policy.AttackDelay(2))
	assert.Equal(t, 5*time.Minute, policy.AttackDelay(40))

	policy, _ = PolicyFor(step.OpEmailCheck)
	assert.Equal(t, 150*time.Second, policy.AttackDelay(4))
	assert.Equal(t, 150*time.Second, policy.AttackDelay(9))
}

func TestCheckIsIdempotent(t *testing.T) {
	h := newHarness(t)
	op := step.OpPasswordVerify
	for i := 0; i < 5; i++ {
		h.fail(t, op)
	}
	key := recordKey(email, op)
	before, err := h.store.Get(context.Background(), key)
	require.NoError(t, err)
	writes := h.store.writes

	for i := 0; i < 20; i++ {
		h.check(t, op)
		h.clock.Advance(time.Minute)
	}

	after, err := h.store.Memory.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, writes, h.store.writes)
	assert.True(t, bytes.Equal(before, after))
}

func TestResetClearsRecordsAndHistory(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.fail(t, step.OpPasswordVerify)
	}
	h.fail(t, step.OpEmailCheck)

	require.NoError(t, h.limiter.Reset(context.Background(), email, step.OpEmailCheck))
	assert.True(t, h.snapshot(t, step.OpEmailCheck).IsZero())
	assert.True(t, h.snapshot(t, step.OpPasswordVerify).IsLocked)

	require.NoError(t, h.limiter.Reset(context.Background(), email))
	assert.True(t, h.check(t, step.OpPasswordVerify).Allowed)
	under, err := h.limiter.IsUnderAttack(context.Background(), email)
	require.NoError(t, err)
	assert.False(t, under)
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.limiter.IsAttemptAllowed(ctx, "", step.OpEmailCheck)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = h.limiter.IsAttemptAllowed(ctx, email, "name_setup")
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.ErrorIs(t, h.limiter.RecordAttempt(ctx, email, step.OpNone, false, ""), ErrUnknownOperation)
	assert.ErrorIs(t, h.limiter.Reset(ctx, email, "bogus"), ErrUnknownOperation)
	assert.Zero(t, h.store.writes)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("connection refused") }

func TestFailsOpenWhenStoreUnavailable(t *testing.T) {
	l := New(brokenStore{}, attack.New(brokenStore{}, attack.Config{}), Options{Logger: zaptest.NewLogger(t)})

	d, err := l.IsAttemptAllowed(context.Background(), email, step.OpPasswordVerify)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)

	err = l.RecordAttempt(context.Background(), email, step.OpPasswordVerify, false, "")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, attack.ErrStoreUnavailable)
}

func TestCorruptRecordIsDiscarded(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Memory.Set(context.Background(), recordKey(email, step.OpEmailCheck), []byte{7}, 0))
	assert.True(t, h.snapshot(t, step.OpEmailCheck).IsZero())
	assert.True(t, h.check(t, step.OpEmailCheck).Allowed)
}

func TestRecordEncoding(t *testing.T) {
	in := Record{
		TotalFailedAttempts:  4,
		NextAttemptAllowedAt: time.UnixMilli(1_700_000_001_000),
		IsLocked:             true,
		LockoutEndsAt:        time.UnixMilli(1_700_000_900_000),
		CurrentDelay:         8 * time.Second,
	}
	data, err := encodeRecord(in)
	require.NoError(t, err)
	out, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, in.TotalFailedAttempts, out.TotalFailedAttempts)
	assert.True(t, in.NextAttemptAllowedAt.Equal(out.NextAttemptAllowedAt))
	assert.True(t, in.LockoutEndsAt.Equal(out.LockoutEndsAt))
	assert.Equal(t, in.IsLocked, out.IsLocked)
	assert.Equal(t, in.CurrentDelay, out.CurrentDelay)

	zero, err := encodeRecord(Record{})
	require.NoError(t, err)
	out, err = decodeRecord(zero)
	require.NoError(t, err)
	assert.True(t, out.NextAttemptAllowedAt.IsZero())
}

func TestRecordsSurviveRestartInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	clock := &fakeClock{t: time.Now()}
	newLimiter := func() *Limiter {
		s := store.NewRedis(client, "")
		return New(s, attack.New(s, attack.Config{}, attack.WithClock(clock.Now)), Options{Now: clock.Now, Jitter: noJitter})
	}

	first := newLimiter()
	for i := 0; i < 5; i++ {
		require.NoError(t, first.RecordAttempt(context.Background(), email, step.OpPasswordVerify, false, "web"))
	}

	second := newLimiter()
	d, err := second.IsAttemptAllowed(context.Background(), email, step.OpPasswordVerify)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonLocked, d.Reason)

	assert.Equal(t, 30*time.Minute, mr.TTL("af:rl:password_verify:"+email))
	assert.Equal(t, time.Hour, mr.TTL("af:ap:"+email))
}
