// Package orchestrator sequences the four workflow phases over a single
// thread's state, enforcing the turn and retry governors, the approval gate,
// and agent-issued handoff overrides.
//
// Execution is cooperative and sequential within a thread: exactly one step
// runs at a time, state is snapshotted to the checkpoint store after every
// merge, and a failed or cancelled step leaves the state exactly as it was
// before the step began. Many threads may run concurrently in a host; each
// gets its own [Orchestrator.Run] call and its own state.
//
// Key types:
//   - [Orchestrator] - Sequences phases and owns the state for a run
//   - [Limits] - Turn ceiling, per-agent retry ceiling, fallback agent
//   - [StepRunner] - The step-execution boundary ([phase.Runner] implements it)
//   - [ApprovalSource] - Where gate verdicts come from
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"crewflow/internal/agent"
	"crewflow/internal/checkpoint"
	"crewflow/internal/handoff"
	"crewflow/internal/llm"
	"crewflow/internal/phase"
	"crewflow/internal/state"
)

// StepRunner executes one pipeline step. [phase.Runner] is the production
// implementation; tests substitute their own.
type StepRunner interface {
	RunStep(ctx context.Context, st *state.WorkflowState, role agent.Role) (phase.StepResult, error)
}

// ApprovalSource reports the externally recorded verdict for a thread. The
// orchestrator only ever reads it, and only at a gate.
type ApprovalSource interface {
	Status(threadID string) (state.ApprovalStatus, error)
}

// Limits are the governor's ceilings.
type Limits struct {
	// MaxTurns caps total orchestrator steps per run.
	MaxTurns int

	// MaxAgentRetries caps consecutive retries of one agent's step.
	MaxAgentRetries int

	// FallbackAgent, when set, receives a step whose owner exhausted its
	// retries. Exhaustion by the fallback itself is fatal. When empty,
	// exhaustion is immediately fatal.
	FallbackAgent agent.Role
}

// DefaultLimits returns the standard governor configuration.
func DefaultLimits() Limits {
	return Limits{MaxTurns: 50, MaxAgentRetries: 2}
}

// Orchestrator drives a thread through Strategy, Design, Build, and Ship.
type Orchestrator struct {
	runner    StepRunner
	store     checkpoint.Store
	approvals ApprovalSource
	gated     map[state.Phase]bool
	limits    Limits
	logger    *zap.Logger
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithStore sets the checkpoint store. Without one, state lives only for
// the duration of the call and gates cannot be resumed across processes.
func WithStore(s checkpoint.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithApprovals sets the gate verdict source.
func WithApprovals(a ApprovalSource) Option {
	return func(o *Orchestrator) { o.approvals = a }
}

// WithGatedPhases marks phases that require approval before entry. Gating a
// phase without also wiring [WithApprovals] fails the run at the gate.
func WithGatedPhases(phases ...state.Phase) Option {
	return func(o *Orchestrator) {
		for _, p := range phases {
			o.gated[p] = true
		}
	}
}

// WithLimits sets the governor ceilings.
func WithLimits(l Limits) Option {
	return func(o *Orchestrator) { o.limits = l }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator over the given step runner.
func New(runner StepRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner: runner,
		gated:  make(map[state.Phase]bool),
		limits: DefaultLimits(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts or continues the workflow for a thread. A new thread gets fresh
// state seeded with the message; an existing thread (present in the store)
// has the message appended and continues from its persisted position.
//
// Run always returns the thread's state, even alongside an error: progress
// is never silently discarded. Suspension at an approval gate is reported as
// [ErrApprovalPending].
func (o *Orchestrator) Run(ctx context.Context, threadID, message string) (*state.WorkflowState, error) {
	st, err := o.loadOrCreate(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if message != "" {
		st.Messages = append(st.Messages, state.UserMessage(message))
	}

	return o.advance(ctx, st)
}

// Resume continues a checkpointed thread from the exact step it would have
// taken next: the persisted phase and next-agent fields select the same step
// an uninterrupted run would have chosen.
func (o *Orchestrator) Resume(ctx context.Context, threadID string) (*state.WorkflowState, error) {
	if o.store == nil {
		return nil, errors.New("resume requires a checkpoint store")
	}
	st, err := o.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return o.advance(ctx, st)
}

// loadOrCreate restores a thread's snapshot or starts fresh state.
func (o *Orchestrator) loadOrCreate(ctx context.Context, threadID string) (*state.WorkflowState, error) {
	if o.store != nil {
		st, err := o.store.Load(ctx, threadID)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, checkpoint.ErrNotFound) {
			return nil, err
		}
	}
	return state.New(threadID), nil
}

// advance walks the remaining phases in order. There is no skip logic:
// every phase from the current one onward runs, gated phases pending their
// verdict first.
//
// When a phase completes, the snapshot schedules the following phase's
// opening step in Next but leaves Phase untouched: a pending gate must
// suspend without advancing the phase, and the resume resolves the scheduled
// step back to the phase it belongs to.
func (o *Orchestrator) advance(ctx context.Context, st *state.WorkflowState) (*state.WorkflowState, error) {
	// Only a finished run leaves the final phase with nothing scheduled.
	// Re-running terminal steps on a stray second invocation would duplicate
	// their messages and artifacts.
	if st.Phase == state.Phases[len(state.Phases)-1] && st.Next == "" {
		return st, ErrThreadComplete
	}

	for {
		p := o.resolvePhase(st)

		if err := o.checkGate(st, p); err != nil {
			o.save(ctx, st)
			return st, err
		}

		st.Phase = p
		o.logger.Info("entering phase",
			zap.String("thread", st.ThreadID),
			zap.String("phase", string(p)),
		)

		pipe, ok := phase.For(p)
		if !ok {
			return st, fmt.Errorf("no pipeline for phase %s", p)
		}
		if err := o.runPipeline(ctx, st, pipe); err != nil {
			o.save(ctx, st)
			return st, err
		}

		next, ok := nextPhase(p)
		if !ok {
			break
		}
		nextPipe, _ := phase.For(next)
		st.Next = nextPipe.Steps[0]
		o.save(ctx, st)
	}

	st.Next = ""
	o.save(ctx, st)
	return st, nil
}

// resolvePhase returns the phase the scheduled next step belongs to. A
// snapshot taken between phases carries the finished phase in Phase and the
// following phase's opening step in Next; everything else stays put.
func (o *Orchestrator) resolvePhase(st *state.WorkflowState) state.Phase {
	p := st.Phase
	if st.Next == "" {
		return p
	}
	if st.PendingStep != "" {
		// An override inside p is in flight; Next may even coincide with
		// the following phase's opening step.
		return p
	}
	if pipe, ok := phase.For(p); ok && pipe.StepIndex(st.Next) >= 0 {
		return p
	}
	if next, ok := nextPhase(p); ok {
		if pipe, ok := phase.For(next); ok && len(pipe.Steps) > 0 && pipe.Steps[0] == st.Next {
			return next
		}
	}
	return p
}

// pendingAfter returns the regular step the pipeline continues with once an
// override finishes, or empty when the override closes the phase.
func pendingAfter(pipe phase.Pipeline, idx int) agent.Role {
	if idx < len(pipe.Steps) {
		return pipe.Steps[idx]
	}
	return ""
}

// nextPhase returns the phase after p in execution order.
func nextPhase(p state.Phase) (state.Phase, bool) {
	for i, cur := range state.Phases {
		if cur == p && i+1 < len(state.Phases) {
			return state.Phases[i+1], true
		}
	}
	return "", false
}

// checkGate enforces the approval gate before a guarded phase. A gated phase
// with no verdict source is a wiring bug, not an open gate.
func (o *Orchestrator) checkGate(st *state.WorkflowState, p state.Phase) error {
	if !o.gated[p] {
		return nil
	}
	if o.approvals == nil {
		return fmt.Errorf("phase %s is gated but no approval source is configured", p)
	}

	status, err := o.approvals.Status(st.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to read approval status: %w", err)
	}

	st.RequiresApproval = true
	st.ApprovalStatus = status

	switch status {
	case state.ApprovalApproved:
		st.RequiresApproval = false
		return nil
	case state.ApprovalRejected:
		return ErrApprovalRejected
	default:
		return ErrApprovalPending
	}
}

// runPipeline executes one phase's steps in order, honoring handoff
// overrides, the retry governor, and the turn ceiling.
func (o *Orchestrator) runPipeline(ctx context.Context, st *state.WorkflowState, pipe phase.Pipeline) error {
	idx := 0
	var override agent.Role

	// A restored snapshot resumes at its scheduled next step. Roles appear
	// at most once per pipeline, so the index is unambiguous. A next-agent
	// outside this pipeline is a pending handoff or fallback override; the
	// snapshot's pending step says where the pipeline picks back up once
	// the override finishes, so already-executed steps never replay.
	if st.Next != "" {
		if i := pipe.StepIndex(st.Next); i >= 0 {
			idx = i
		} else {
			override = st.Next
			idx = len(pipe.Steps)
			if i := pipe.StepIndex(st.PendingStep); i >= 0 {
				idx = i
			}
		}
	}

	for idx < len(pipe.Steps) || override != "" {
		role := override
		fromOverride := override != ""
		if !fromOverride {
			role = pipe.Steps[idx]
			st.PendingStep = ""
		}

		st.Next = role
		o.save(ctx, st)

		result, err := o.runner.RunStep(ctx, st, role)
		if err != nil {
			retry, stepErr := o.handleStepFailure(ctx, st, role, err)
			if stepErr != nil {
				return stepErr
			}
			if retry {
				continue
			}
			// Retries exhausted and a fallback is configured: the
			// fallback takes over this step, the failed step is spent.
			override = o.limits.FallbackAgent
			if !fromOverride {
				idx++
			}
			st.PendingStep = pendingAfter(pipe, idx)
			continue
		}

		// Successful step: clear the role's retry counter in the same
		// merge, then fold the result in (turn count increments here).
		if result.Update.AgentRetries == nil {
			result.Update.AgentRetries = map[agent.Role]int{}
		}
		result.Update.AgentRetries[role] = 0
		st.Apply(result.Update)

		if st.TurnCount > o.limits.MaxTurns {
			o.save(ctx, st)
			return &BoundedLoopError{Turns: st.TurnCount, Limit: o.limits.MaxTurns}
		}

		if pipe.Phase == state.PhaseBuild && role == agent.Reviewer {
			// The review verdict is observed but does not branch: Tester
			// runs next either way. The changes-requested route back to
			// Builder is not wired; see phase.ReviewApproved.
			o.logger.Info("review verdict",
				zap.String("thread", st.ThreadID),
				zap.Bool("approved", phase.ReviewApproved(st)),
			)
		}

		if result.Handoff != nil {
			st.Next = result.Handoff.TargetAgent
			o.logger.Info("handoff",
				zap.String("thread", st.ThreadID),
				zap.String("from", string(role)),
				zap.String("to", string(result.Handoff.TargetAgent)),
				zap.String("reason", result.Handoff.Reason),
				zap.String("context", result.Handoff.Context),
			)
			override = result.Handoff.TargetAgent
			if !fromOverride {
				idx++
			}
			st.PendingStep = pendingAfter(pipe, idx)
		} else {
			if fromOverride {
				override = ""
				st.PendingStep = ""
			} else {
				idx++
			}
		}

		o.save(ctx, st)
	}

	return nil
}

// handleStepFailure applies the retry policy to a failed step. It returns
// retry=true when the same role should be re-invoked, (false, nil) when a
// configured fallback should take the step over, and a terminal error
// otherwise. Routing errors, fatal invocation errors, and cancellation all
// terminate; a cancelled step merges nothing, so the state is exactly as it
// was before the step began.
func (o *Orchestrator) handleStepFailure(ctx context.Context, st *state.WorkflowState, role agent.Role, err error) (bool, error) {
	var routing *handoff.RoutingError
	if errors.As(err, &routing) {
		return false, routing
	}

	if !llm.Retryable(err) {
		return false, err
	}

	// Transient upstream failure: record it as a turn so runaway retry
	// loops stay visible to the turn governor.
	retries := st.AgentRetries[role] + 1
	st.Apply(state.Update{
		AgentRetries: map[agent.Role]int{role: retries},
		NeedsRetry:   state.Ptr(true),
		LastError:    state.Ptr(err.Error()),
	})
	o.save(ctx, st)

	if st.TurnCount > o.limits.MaxTurns {
		return false, &BoundedLoopError{Turns: st.TurnCount, Limit: o.limits.MaxTurns}
	}

	if retries <= o.limits.MaxAgentRetries {
		o.logger.Warn("retrying step",
			zap.String("thread", st.ThreadID),
			zap.String("agent", string(role)),
			zap.Int("attempt", retries),
			zap.Error(err),
		)
		return true, nil
	}

	if o.limits.FallbackAgent != "" && role != o.limits.FallbackAgent {
		o.logger.Warn("escalating exhausted step to fallback agent",
			zap.String("thread", st.ThreadID),
			zap.String("agent", string(role)),
			zap.String("fallback", string(o.limits.FallbackAgent)),
		)
		return false, nil
	}

	return false, &AgentRetryExhaustedError{Agent: role, Retries: retries, Limit: o.limits.MaxAgentRetries}
}

// save checkpoints st when a store is configured. Persistence failures are
// logged, not fatal: the in-memory run is still authoritative.
func (o *Orchestrator) save(ctx context.Context, st *state.WorkflowState) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, st); err != nil {
		o.logger.Error("checkpoint save failed",
			zap.String("thread", st.ThreadID),
			zap.Error(err),
		)
	}
}
