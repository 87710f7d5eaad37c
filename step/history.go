package step

// MaxHistory bounds the number of visited steps kept by a History.
const MaxHistory = 10

// History is the ordered list of visited steps. It is append-only except for
// pops on back-navigation. The zero value is ready to use and not safe for
// concurrent use; the owning flow serializes access.
type History struct {
	steps []AuthStep
}

// NewHistory returns a history seeded with the given steps, keeping only the
// newest MaxHistory of them.
func NewHistory(steps ...AuthStep) History {
	var h History
	for _, s := range steps {
		h.Push(s)
	}
	return h
}

// Push appends s. Pushing the step that is already current is a no-op.
func (h *History) Push(s AuthStep) {
	if n := len(h.steps); n > 0 && h.steps[n-1] == s {
		return
	}
	h.steps = append(h.steps, s)
	if over := len(h.steps) - MaxHistory; over > 0 {
		h.steps = append(h.steps[:0], h.steps[over:]...)
	}
}

// Current returns the newest step.
func (h History) Current() (AuthStep, bool) {
	if len(h.steps) == 0 {
		return EmailEntry, false
	}
	return h.steps[len(h.steps)-1], true
}

// Previous returns the second-to-last step.
func (h History) Previous() (AuthStep, bool) {
	if len(h.steps) < 2 {
		return EmailEntry, false
	}
	return h.steps[len(h.steps)-2], true
}

// Len returns the number of recorded steps.
func (h History) Len() int {
	return len(h.steps)
}

// Steps returns a copy of the recorded steps, oldest first.
func (h History) Steps() []AuthStep {
	out := make([]AuthStep, len(h.steps))
	copy(out, h.steps)
	return out
}

// CanNavigateBack reports whether back-navigation is allowed: there must be a
// previous step and it must be safe to re-enter.
func CanNavigateBack(h History) bool {
	prev, ok := h.Previous()
	return ok && IsStepSafe(prev)
}

// Back pops the current step and returns the step the user lands on. It
// refuses when CanNavigateBack is false and leaves the history unchanged.
func (h *History) Back() (AuthStep, bool) {
	if !CanNavigateBack(*h) {
		return EmailEntry, false
	}
	h.steps = h.steps[:len(h.steps)-1]
	return h.steps[len(h.steps)-1], true
}

// Reset drops every entry.
func (h *History) Reset() {
	h.steps = h.steps[:0]
}
