// Package sandbox gates every network download and local install behind a
// single process-wide decision made once at startup.
package sandbox

import (
	"errors"
	"fmt"

	"github.com/3leaps/bundlefetch/internal/hostenv"
)

// ErrSandboxed matches every rejection produced by a sandboxed Guard.
var ErrSandboxed = errors.New("not permitted in sandbox")

// RejectedError names the operation a sandboxed Guard refused.
type RejectedError struct {
	Op     string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, ErrSandboxed, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Op, ErrSandboxed)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrSandboxed
}

// Guard is an immutable sandbox decision. The zero value allows everything.
type Guard struct {
	sandboxed bool
	reason    string
}

// New returns a Guard with a fixed decision.
func New(sandboxed bool, reason string) Guard {
	return Guard{sandboxed: sandboxed, reason: reason}
}

// Detect computes the decision from configuration and the environment.
// Configuration wins; the environment can only turn sandboxing on.
func Detect(configured bool, getenv func(string) string) Guard {
	switch {
	case configured:
		return New(true, "sandboxed by configuration")
	case hostenv.SandboxedFromEnv(getenv):
		return New(true, hostenv.SandboxEnvVar+" is set")
	default:
		return Guard{}
	}
}

// Sandboxed reports the decision.
func (g Guard) Sandboxed() bool { return g.sandboxed }

// Reason explains why the guard is sandboxed. Empty when it is not.
func (g Guard) Reason() string { return g.reason }

// Check returns a *RejectedError for op when sandboxed, nil otherwise.
// Callers must call it before any network or filesystem side effect.
func (g Guard) Check(op string) error {
	if !g.sandboxed {
		return nil
	}
	return &RejectedError{Op: op, Reason: g.reason}
}
