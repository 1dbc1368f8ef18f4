// Package policy decides, after each tool observation, whether a session's
// retry budgets remain intact or the Agent Loop must terminate the run.
// It resolves the retry-budget Open Question from the design notes: parse
// failures share one budget that resets on any successful tool
// observation, while executor failures are tracked per tool with
// independent consecutive-failure counters, so one flaky tool doesn't
// spend down the whole session's patience with every other tool.
package policy

import (
	"context"
	"fmt"
	"time"
)

type (
	// Engine decides whether a session's caps remain satisfied after an
	// observation. The Agent Loop invokes it once per Exchange appended
	// to the log.
	Engine interface {
		// Decide evaluates outcome against caps and returns the updated
		// caps plus a termination verdict.
		Decide(ctx context.Context, input Input) (Decision, error)
	}

	// Input groups what the policy engine needs to evaluate one outcome.
	Input struct {
		Caps    CapsState
		Outcome Outcome
		// Now is supplied by the caller (typically WorkflowContext.Now)
		// rather than read from the wall clock directly, so Decide stays
		// safe to call from a deterministic workflow handler.
		Now time.Time
	}

	// Decision captures the outcome of a policy evaluation.
	Decision struct {
		Caps      CapsState
		Terminate bool
		Reason    string
	}

	// Outcome describes what just happened following a tool invocation
	// attempt, the event the policy engine reacts to.
	Outcome struct {
		Kind OutcomeKind
		// Tool is the tool name involved, set for ToolSuccess/ToolFailure.
		Tool string
	}

	// OutcomeKind enumerates the events policy.Engine reacts to.
	OutcomeKind string

	// CapsState tracks remaining retry budgets for a session. The Agent
	// Loop decrements these via Engine.Decide as parse failures and tool
	// failures occur.
	CapsState struct {
		// MaxParseFailureRetries is the configured budget (spec
		// §4.6/ParseFailureRetries). Zero means unlimited.
		MaxParseFailureRetries int
		// RemainingParseFailures counts down on each parse failure and
		// resets to MaxParseFailureRetries on any successful tool
		// observation.
		RemainingParseFailures int

		// MaxConsecutiveToolFailures caps consecutive failures of a single
		// tool before the session terminates. Zero means unlimited.
		MaxConsecutiveToolFailures int
		// ToolFailureStreak tracks the current consecutive-failure count
		// per tool name. A success for a tool resets its entry to zero.
		ToolFailureStreak map[string]int

		// ExpiresAt is the session's wall-clock deadline
		// (spec §6, SessionTimeout). Zero means no deadline.
		ExpiresAt time.Time
	}
)

const (
	OutcomeParseFailure OutcomeKind = "parse_failure"
	OutcomeToolSuccess  OutcomeKind = "tool_success"
	OutcomeToolFailure  OutcomeKind = "tool_failure"
)

// NewCapsState builds a CapsState from session-level retry budgets.
func NewCapsState(maxParseFailureRetries, maxConsecutiveToolFailures int, expiresAt time.Time) CapsState {
	return CapsState{
		MaxParseFailureRetries:     maxParseFailureRetries,
		RemainingParseFailures:     maxParseFailureRetries,
		MaxConsecutiveToolFailures: maxConsecutiveToolFailures,
		ToolFailureStreak:          make(map[string]int),
		ExpiresAt:                 expiresAt,
	}
}

// DefaultEngine implements the caps/retry-budget semantics described in
// spec.md's design notes, resolved as above.
type DefaultEngine struct{}

// Decide applies outcome to caps and reports whether the session should
// terminate as a result.
func (DefaultEngine) Decide(_ context.Context, in Input) (Decision, error) {
	caps := in.Caps
	if caps.ToolFailureStreak == nil {
		caps.ToolFailureStreak = make(map[string]int)
	} else {
		cloned := make(map[string]int, len(caps.ToolFailureStreak))
		for k, v := range caps.ToolFailureStreak {
			cloned[k] = v
		}
		caps.ToolFailureStreak = cloned
	}

	switch in.Outcome.Kind {
	case OutcomeParseFailure:
		if caps.MaxParseFailureRetries > 0 {
			caps.RemainingParseFailures--
		}
	case OutcomeToolSuccess:
		caps.RemainingParseFailures = caps.MaxParseFailureRetries
		if in.Outcome.Tool != "" {
			caps.ToolFailureStreak[in.Outcome.Tool] = 0
		}
	case OutcomeToolFailure:
		if in.Outcome.Tool != "" {
			caps.ToolFailureStreak[in.Outcome.Tool]++
		}
	}

	if caps.MaxParseFailureRetries > 0 && caps.RemainingParseFailures <= 0 {
		return Decision{Caps: caps, Terminate: true, Reason: "parse failure retry budget exhausted"}, nil
	}
	if caps.MaxConsecutiveToolFailures > 0 && in.Outcome.Tool != "" &&
		caps.ToolFailureStreak[in.Outcome.Tool] >= caps.MaxConsecutiveToolFailures {
		return Decision{
			Caps:      caps,
			Terminate: true,
			Reason:    fmt.Sprintf("tool %q exceeded consecutive failure budget", in.Outcome.Tool),
		}, nil
	}
	if !caps.ExpiresAt.IsZero() && !in.Now.IsZero() && in.Now.After(caps.ExpiresAt) {
		return Decision{Caps: caps, Terminate: true, Reason: "session time budget exceeded"}, nil
	}
	return Decision{Caps: caps}, nil
}
