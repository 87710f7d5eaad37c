package step_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrEthical07/authflow/step"
)

func TestHistoryBoundedToMax(t *testing.T) {
	var h step.History
	for i := 0; i < 25; i++ {
		// alternate so consecutive pushes are never deduplicated
		if i%2 == 0 {
			h.Push(step.Password)
		} else {
			h.Push(step.PhoneSetup)
		}
	}
	assert.Equal(t, step.MaxHistory, h.Len())
	cur, ok := h.Current()
	assert.True(t, ok)
	assert.Equal(t, step.Password, cur)
}

func TestHistoryPushDeduplicatesCurrent(t *testing.T) {
	h := step.NewHistory(step.EmailEntry, step.EmailEntry, step.Password)
	assert.Equal(t, []step.AuthStep{step.EmailEntry, step.Password}, h.Steps())
}

func TestBackAllowedFromSafePrevious(t *testing.T) {
	h := step.NewHistory(step.EmailEntry, step.Password)
	assert.True(t, step.CanNavigateBack(h))

	landed, ok := h.Back()
	assert.True(t, ok)
	assert.Equal(t, step.EmailEntry, landed)
	assert.Equal(t, 1, h.Len())

	_, ok = h.Back()
	assert.False(t, ok, "a single entry has no previous step")
}

func TestBackBlockedWhenPreviousIsUnsafe(t *testing.T) {
	h := step.NewHistory(step.EmailEntry, step.PasswordSetup, step.EmailVerify, step.PhoneSetup)
	assert.False(t, step.CanNavigateBack(h))

	_, ok := h.Back()
	assert.False(t, ok)
	assert.Equal(t, 4, h.Len(), "refused navigation must not pop")
}

func TestStepsReturnsCopy(t *testing.T) {
	h := step.NewHistory(step.EmailEntry, step.Password)
	steps := h.Steps()
	steps[0] = step.Complete
	first := h.Steps()[0]
	assert.Equal(t, step.EmailEntry, first)
}
