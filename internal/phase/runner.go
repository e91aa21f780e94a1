package phase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crewflow/internal/agent"
	"crewflow/internal/artifact"
	"crewflow/internal/delegate"
	"crewflow/internal/handoff"
	"crewflow/internal/llm"
	"crewflow/internal/state"
	"crewflow/internal/toolcall"
)

// StepResult is the outcome of one successfully executed step: the partial
// state update to merge, plus any control-transfer the step issued.
type StepResult struct {
	// Update carries the step's messages, artifacts, and contributors.
	Update state.Update

	// Handoff is the step's explicit next-agent override, if any.
	Handoff *handoff.Request

	// Batch holds the delegated sub-tasks the step fanned out, for audit.
	// The aggregated summary is already appended to Update.Messages.
	Batch *delegate.Batch

	// CacheHit reports that the response came from the cache.
	CacheHit bool
}

// Runner executes individual pipeline steps. It owns the LLM boundary
// concerns: cache pre-check, invocation with a timeout, usage reporting,
// and extraction of tool calls from the response.
type Runner struct {
	invoker llm.Invoker
	cache   llm.Cache
	ledger  llm.Ledger
	logger  *zap.Logger

	// models maps roles to model ids; defaultModel covers the rest.
	models       map[agent.Role]string
	defaultModel string

	// invokeTimeout bounds one LLM call. Zero means no timeout.
	invokeTimeout time.Duration
}

// RunnerOption configures a [Runner].
type RunnerOption func(*Runner)

// WithCache sets the response cache. Defaults to [llm.NopCache].
func WithCache(c llm.Cache) RunnerOption {
	return func(r *Runner) { r.cache = c }
}

// WithLedger sets the usage ledger. Defaults to [llm.NopLedger].
func WithLedger(l llm.Ledger) RunnerOption {
	return func(r *Runner) { r.ledger = l }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithModels sets the default model id and per-role overrides.
func WithModels(defaultModel string, byRole map[agent.Role]string) RunnerOption {
	return func(r *Runner) {
		r.defaultModel = defaultModel
		r.models = byRole
	}
}

// WithInvokeTimeout bounds each LLM invocation.
func WithInvokeTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.invokeTimeout = d }
}

// NewRunner creates a step runner over the given invoker.
func NewRunner(invoker llm.Invoker, opts ...RunnerOption) *Runner {
	r := &Runner{
		invoker: invoker,
		cache:   llm.NopCache{},
		ledger:  llm.NopLedger{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Model returns the model id configured for a role.
func (r *Runner) Model(role agent.Role) string {
	if m, ok := r.models[role]; ok && m != "" {
		return m
	}
	return r.defaultModel
}

// RunStep executes one pipeline step as the given role and returns its
// result. The state is read, never written: merging the result is the
// orchestrator's job, which is what keeps a failed or cancelled step free of
// partial effects.
//
// Errors pass through unclassified except for the runner's own invocation
// timeout, which surfaces as a retryable [llm.InvocationError]. Routing
// errors from an invalid handoff target propagate as-is.
func (r *Runner) RunStep(ctx context.Context, st *state.WorkflowState, role agent.Role) (StepResult, error) {
	req := llm.Request{
		ThreadID:     st.ThreadID,
		Agent:        role,
		SystemPrompt: agent.SystemPrompt(role),
		Messages:     st.Messages,
		Model:        r.Model(role),
	}

	resp, cacheHit, err := r.invoke(ctx, req)
	if err != nil {
		return StepResult{}, err
	}

	r.ledger.Record(llm.Usage{
		ThreadID:  st.ThreadID,
		Agent:     role,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		Latency:   resp.Latency,
		CacheHit:  cacheHit,
	})

	envelopes := toolcall.Scan(resp.Content)

	ho, err := handoff.Extract(envelopes)
	if err != nil {
		return StepResult{}, err
	}

	result := StepResult{
		Handoff:  ho,
		CacheHit: cacheHit,
		Update: state.Update{
			Messages:     []state.Message{state.AgentMessage(role, resp.Content)},
			Contributors: []agent.Role{role},
			Artifacts:    artifact.Extract(envelopes, string(role)),
			NeedsRetry:   state.Ptr(false),
			LastError:    state.Ptr(""),
		},
	}

	if requests := delegate.Extract(envelopes, role); len(requests) > 0 {
		batch, err := delegate.NewBatch(requests)
		if err != nil {
			return StepResult{}, fmt.Errorf("%s issued an invalid delegation: %w", role, err)
		}
		if err := delegate.Run(ctx, batch, r.workFor(st.ThreadID)); err != nil {
			return StepResult{}, err
		}

		summary := delegate.Summarize(batch)
		result.Batch = batch
		result.Update.Messages = append(result.Update.Messages,
			state.AgentMessage(role, summary.Text()))
		for _, t := range batch.Tasks {
			if t.Status == delegate.StatusCompleted {
				result.Update.Contributors = append(result.Update.Contributors, t.Worker)
			}
		}

		r.logger.Info("delegation complete",
			zap.String("thread", st.ThreadID),
			zap.String("supervisor", string(role)),
			zap.Int("completed", summary.Completed),
			zap.Int("failed", summary.Failed),
		)
	}

	return result, nil
}

// invoke performs the cache pre-check and the bounded LLM call.
func (r *Runner) invoke(parent context.Context, req llm.Request) (llm.Response, bool, error) {
	key := llm.CacheKey(req)
	if resp, ok := r.cache.Get(key); ok {
		return resp, true, nil
	}

	ctx := parent
	if r.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.invokeTimeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := r.invoker.Invoke(ctx, req)
	if err != nil {
		// The runner's own deadline is an upstream timeout; the parent's
		// cancellation belongs to the caller and passes through untouched.
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			return llm.Response{}, false, &llm.InvocationError{
				Class: llm.ClassTimeout,
				Msg:   fmt.Sprintf("no response within %s", r.invokeTimeout),
				Err:   err,
			}
		}
		return llm.Response{}, false, err
	}

	if resp.Latency == 0 {
		resp.Latency = time.Since(started)
	}
	r.cache.Put(key, resp)
	return resp, false, nil
}

// workFor builds the [delegate.WorkerFunc] that executes a sub-task by
// invoking the LLM as the worker role. Worker calls share the thread's cache
// and ledger but not its transcript: a sub-task sees only its own description
// and context, which is what keeps sub-tasks independent.
func (r *Runner) workFor(threadID string) delegate.WorkerFunc {
	return func(ctx context.Context, task delegate.SubTask) (string, error) {
		prompt := task.Description
		if task.Context != "" {
			prompt = task.Description + "\n\nContext: " + task.Context
		}

		req := llm.Request{
			ThreadID:     threadID,
			Agent:        task.Worker,
			SystemPrompt: agent.SystemPrompt(task.Worker),
			Messages:     []state.Message{state.UserMessage(prompt)},
			Model:        r.Model(task.Worker),
		}

		resp, _, err := r.invoke(ctx, req)
		if err != nil {
			return "", err
		}

		r.ledger.Record(llm.Usage{
			ThreadID:  threadID,
			Agent:     task.Worker,
			Model:     resp.Model,
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
			Latency:   resp.Latency,
		})

		return resp.Content, nil
	}
}
