package filter

import (
	"fmt"
	"sync/atomic"

	"sniper_bot/internal/model"
)

// Policy holds the active FilterPolicy. Updates swap in a new copy so a
// reader always sees one whole policy.
type Policy struct {
	current atomic.Pointer[model.FilterPolicy]
}

// NewPolicy returns a holder initialised with p.
func NewPolicy(p model.FilterPolicy) *Policy {
	h := &Policy{}
	c := p.Clone()
	h.current.Store(&c)
	return h
}

// Load returns the current policy. Callers must not modify its slices.
func (h *Policy) Load() model.FilterPolicy {
	return *h.current.Load()
}

// Replace swaps in p wholesale.
func (h *Policy) Replace(p model.FilterPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validate policy: %w", err)
	}
	c := p.Clone()
	h.current.Store(&c)
	return nil
}

// Update merges patch into the current policy and returns the result.
func (h *Policy) Update(patch model.PolicyPatch) (model.FilterPolicy, error) {
	for {
		old := h.current.Load()
		next, err := old.Apply(patch)
		if err != nil {
			return *old, err
		}
		if h.current.CompareAndSwap(old, &next) {
			return next, nil
		}
	}
}
