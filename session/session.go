// Package session implements the Session aggregate (C5): the aggregate
// root binding an exchange log, an action-node tree, user context, and
// cancellation state. Grounded on the teacher's session.Session/RunMeta
// split, generalized so one Session owns its own exchange log and action
// tree directly rather than referencing them by a separate run store.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/exchange"
	"github.com/agentcore/decisioncore/ident"
)

// Status is one of the session lifecycle states (spec §3, invariant I3).
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusErrored   Status = "errored"
)

// validTransitions encodes I3's DAG: Idle -> Running -> {Paused <-> Running}
// -> {Completed | Cancelled | Errored}, plus Idle -> Cancelled and
// Running -> Idle.
var validTransitions = map[Status]map[Status]bool{
	StatusIdle:      {StatusRunning: true, StatusCancelled: true},
	StatusRunning:   {StatusPaused: true, StatusCompleted: true, StatusCancelled: true, StatusErrored: true, StatusIdle: true},
	StatusPaused:    {StatusRunning: true, StatusCancelled: true},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusErrored:   {},
}

// UserContext is a structured description of the editor state (spec §3).
type UserContext struct {
	OpenFiles     []string
	VisibleRanges map[string][2]int
	Shell         string
	WorkspaceRoot string
}

// RepoRef references the repository under analysis (spec §3).
type RepoRef struct {
	Name string
	Root string
}

// ModelConfig selects model identifiers for fast and slow work (spec §3,
// §6's SessionConfig.model_config).
type ModelConfig struct {
	Fast string
	Slow string
}

// Session is the aggregate root described in spec §4.5. All mutation runs
// under mu, giving the process a single exclusive writer per session (spec
// §5, "each active session maps to exactly one driver task"; P2).
type Session struct {
	mu sync.Mutex

	id            ident.SessionID
	userContext   UserContext
	repoRef       RepoRef
	projectLabels []string
	status        Status
	modelConfig   ModelConfig
	config        Config

	exchanges *exchange.Log
	tree      *actiontree.Tree

	cancelFn  context.CancelFunc
	cancelCtx context.Context

	createdAt time.Time
	updatedAt time.Time
}

// New constructs a fresh, Idle session.
func New(userContext UserContext, repoRef RepoRef, labels []string, modelConfig ModelConfig, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:            ident.NewSessionID(),
		userContext:   userContext,
		repoRef:       repoRef,
		projectLabels: labels,
		status:        StatusIdle,
		modelConfig:   modelConfig,
		config:        cfg.withDefaults(),
		exchanges:     exchange.NewLog(),
		tree:          actiontree.NewTree(),
		cancelCtx:     ctx,
		cancelFn:      cancel,
		createdAt:     time.Now().UTC(),
		updatedAt:     time.Now().UTC(),
	}
}

func (s *Session) ID() ident.SessionID { return s.id }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *Session) ModelConfig() ModelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelConfig
}

func (s *Session) UserContext() UserContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userContext
}

func (s *Session) RepoRef() RepoRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repoRef
}

// Exchanges returns the session's append-only transcript.
func (s *Session) Exchanges() *exchange.Log { return s.exchanges }

// Tree returns the session's action-node forest.
func (s *Session) Tree() *actiontree.Tree { return s.tree }

// CancelContext returns the context cancelled by Cancel, observed by the
// Agent Loop and Tree Search Controller at every suspension point (spec
// §5, "Cancellation").
func (s *Session) CancelContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCtx
}

// AppendUserMessage appends a user exchange. Fails with ErrBusy unless
// status is Idle or Paused (spec §4.5).
func (s *Session) AppendUserMessage(text string) (ident.ExchangeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle && s.status != StatusPaused {
		return "", fmt.Errorf("%w: session status is %s", ErrBusy, s.status)
	}
	id := s.exchanges.Append(exchange.Exchange{Role: exchange.RoleUser, Text: text})
	s.updatedAt = time.Now().UTC()
	return id, nil
}

// TransitionTo moves the session to a new status, enforcing I3. Returns
// ErrInvalidTransition if the move is not allowed.
func (s *Session) TransitionTo(next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(next)
}

func (s *Session) transitionLocked(next Status) error {
	if s.status == next {
		return nil
	}
	if !validTransitions[s.status][next] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, next)
	}
	s.status = next
	s.updatedAt = time.Now().UTC()
	return nil
}

// Pause cooperatively requests a pause: currently executing tool calls are
// allowed to finish, then the driver observes the new status and yields
// (spec §4.5). Pause is only valid while Running.
func (s *Session) Pause() error { return s.TransitionTo(StatusPaused) }

// Resume transitions a Paused session back to Running.
func (s *Session) Resume() error { return s.TransitionTo(StatusRunning) }

// Cancel sets status to Cancelled and signals the cancellation token
// observed by the loop and the tree controller. Idempotent (spec §5,
// "Cancellation is idempotent").
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusCancelled || s.status == StatusCompleted || s.status == StatusErrored {
		s.cancelFn()
		return nil
	}
	if err := s.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	s.cancelFn()
	return nil
}
