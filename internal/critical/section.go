// Package critical implements the interrupt-atomic section primitive
// used throughout the task subsystem. On real hardware an atomic
// section disables interrupt delivery (and therefore preemption) on
// the current CPU; since this module runs under the Go scheduler
// rather than on bare metal, a Section is instead the mutual-exclusion
// primitive that serializes access to state the reference scheduler
// reads from outside the calling goroutine (task state, registry
// membership, id allocation).
//
// Code that must run with a Section already held calls the *Locked
// sibling of whatever it needs rather than re-entering the Section,
// the same convention gVisor's kernel package uses around its
// TaskSet.mu: public entry points acquire the section once, internal
// helpers assume it is already held. This sidesteps the need for a
// recursive lock while still letting spawn(), spawn_with_argv() and
// go() treat "create plus a few extra writes" as one atomic region.
package critical

import "sync"

// Section is a non-reentrant mutual-exclusion primitive standing in
// for "interrupts disabled on the current CPU".
type Section struct {
	mu sync.Mutex
}

// Enter begins an atomic section. Callers must call Leave exactly once
// for every Enter, with no blocking calls (and in particular no
// scheduler yield) in between.
func (s *Section) Enter() {
	s.mu.Lock()
}

// Leave ends the atomic section begun by the matching Enter.
func (s *Section) Leave() {
	s.mu.Unlock()
}

// AssertEntered is a best-effort debug check that the Section is
// currently held by somebody. It cannot prove the calling goroutine is
// the holder (Go exposes no portable notion of "current CPU" or
// goroutine identity), so it is only used to catch the common
// programmer error of calling an atomic-section-required entry point
// with no atomic section active at all, matching spec.md's treatment
// of these as assertions that halt the kernel rather than recoverable
// errors.
func (s *Section) AssertEntered() {
	if s.mu.TryLock() {
		s.mu.Unlock()
		panic("critical: entry point requires an active atomic section")
	}
}
