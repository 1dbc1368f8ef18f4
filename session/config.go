package session

import "time"

// Config is the session-scoped configuration object of spec §6's
// "Configuration surface". Per spec.md's design notes, this is passed
// explicitly into session creation rather than read from process-global
// mutable state.
type Config struct {
	BranchingCap        int
	NodeBudget          int
	ExplorationC         float64
	ParseFailureRetries int
	// MaxConsecutiveToolFailures caps how many times in a row a single
	// tool may fail before the loop terminates the session (policy
	// package's per-tool independent streak counters). Zero means
	// unlimited.
	MaxConsecutiveToolFailures int
	PerToolTimeout             time.Duration
	SessionTimeout             time.Duration
	ExplorationEnabled         bool
}

// DefaultConfig returns the defaults named in spec §6.
func DefaultConfig() Config {
	return Config{
		BranchingCap:               3,
		NodeBudget:                 50,
		ExplorationC:               1.41,
		ParseFailureRetries:        3,
		MaxConsecutiveToolFailures: 5,
		PerToolTimeout:             120 * time.Second,
		SessionTimeout:             30 * time.Minute,
		ExplorationEnabled:         false,
	}
}

// withDefaults fills any zero-valued field with its spec default, so
// callers can supply a partially-populated Config.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BranchingCap == 0 {
		c.BranchingCap = d.BranchingCap
	}
	if c.NodeBudget == 0 {
		c.NodeBudget = d.NodeBudget
	}
	if c.ExplorationC == 0 {
		c.ExplorationC = d.ExplorationC
	}
	if c.ParseFailureRetries == 0 {
		c.ParseFailureRetries = d.ParseFailureRetries
	}
	if c.MaxConsecutiveToolFailures == 0 {
		c.MaxConsecutiveToolFailures = d.MaxConsecutiveToolFailures
	}
	if c.PerToolTimeout == 0 {
		c.PerToolTimeout = d.PerToolTimeout
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	return c
}
