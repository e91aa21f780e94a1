package phase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewflow/internal/agent"
	"crewflow/internal/artifact"
	"crewflow/internal/delegate"
	"crewflow/internal/handoff"
	"crewflow/internal/llm"
	"crewflow/internal/state"
)

// invokerFunc adapts a function to [llm.Invoker] for timeout tests.
type invokerFunc func(ctx context.Context, req llm.Request) (llm.Response, error)

func (f invokerFunc) Invoke(ctx context.Context, req llm.Request) (llm.Response, error) {
	return f(ctx, req)
}

func TestRunStepBasic(t *testing.T) {
	mock := &llm.MockInvoker{
		Responses: map[agent.Role]string{agent.Founder: "Vision: ship small."},
	}
	r := NewRunner(mock)

	st := state.New("t1")
	st.Messages = append(st.Messages, state.UserMessage("build a todo app"))

	result, err := r.RunStep(context.Background(), st, agent.Founder)
	require.NoError(t, err)

	require.Len(t, result.Update.Messages, 1)
	assert.Equal(t, string(agent.Founder), result.Update.Messages[0].From)
	assert.Equal(t, "Vision: ship small.", result.Update.Messages[0].Content)
	assert.Equal(t, []agent.Role{agent.Founder}, result.Update.Contributors)
	require.NotNil(t, result.Update.NeedsRetry)
	assert.False(t, *result.Update.NeedsRetry)
	require.NotNil(t, result.Update.LastError)
	assert.Empty(t, *result.Update.LastError)
	assert.Nil(t, result.Handoff)
	assert.Nil(t, result.Batch)

	// The runner reads the state but never writes it.
	assert.Len(t, st.Messages, 1)
	assert.Empty(t, st.Contributors)
	assert.Zero(t, st.TurnCount)
}

func TestRunStepExtractsArtifacts(t *testing.T) {
	mock := &llm.MockInvoker{
		Responses: map[agent.Role]string{
			agent.Builder: "Done.\n" +
				`{"tool":"artifact","artifact":{"kind":"code_change","code_change":{"summary":"wired the store","files":["store.go"]}}}`,
		},
	}
	r := NewRunner(mock)

	result, err := r.RunStep(context.Background(), state.New("t1"), agent.Builder)
	require.NoError(t, err)

	require.Len(t, result.Update.Artifacts, 1)
	a := result.Update.Artifacts[0]
	assert.Equal(t, artifact.KindCodeChange, a.Kind)
	assert.Equal(t, string(agent.Builder), a.Producer)
	require.NotNil(t, a.CodeChange)
	assert.Equal(t, "wired the store", a.CodeChange.Summary)
}

func TestRunStepExtractsHandoff(t *testing.T) {
	mock := &llm.MockInvoker{
		Responses: map[agent.Role]string{
			agent.Reviewer: "Needs rework.\n" +
				`{"tool":"handoff","target_agent":"Builder","reason":"error paths uncovered"}`,
		},
	}
	r := NewRunner(mock)

	result, err := r.RunStep(context.Background(), state.New("t1"), agent.Reviewer)
	require.NoError(t, err)

	require.NotNil(t, result.Handoff)
	assert.Equal(t, agent.Builder, result.Handoff.TargetAgent)
	assert.Equal(t, "error paths uncovered", result.Handoff.Reason)
}

func TestRunStepRoutingErrorPropagates(t *testing.T) {
	mock := &llm.MockInvoker{
		Responses: map[agent.Role]string{
			agent.Reviewer: `{"tool":"handoff","target_agent":"Ghost","reason":"?"}`,
		},
	}
	r := NewRunner(mock)

	_, err := r.RunStep(context.Background(), state.New("t1"), agent.Reviewer)

	var routing *handoff.RoutingError
	require.ErrorAs(t, err, &routing)
	assert.Equal(t, "Ghost", routing.Target)
}

func TestRunStepDelegation(t *testing.T) {
	mock := &llm.MockInvoker{
		Responses: map[agent.Role]string{
			agent.Planner: "Plan ready.\n" +
				`{"tool":"delegate","worker_role":"Builder","task_description":"scaffold storage","priority":"high"}` + "\n" +
				`{"tool":"delegate","worker_role":"Tester","task_description":"draft test matrix"}`,
			agent.Builder: "storage scaffolded",
		},
		DefaultContent: "sub-task done",
		FailuresFor: map[agent.Role][]error{
			agent.Tester: {llm.NewError(llm.ClassServerError, "500")},
		},
	}
	r := NewRunner(mock)

	result, err := r.RunStep(context.Background(), state.New("t1"), agent.Planner)
	require.NoError(t, err, "a failed sub-task never fails the step")

	require.NotNil(t, result.Batch)
	require.Len(t, result.Batch.Tasks, 2)
	assert.True(t, result.Batch.AllComplete())

	summary := delegate.Summarize(result.Batch)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)

	// Planner's own message plus the aggregated summary.
	require.Len(t, result.Update.Messages, 2)
	assert.Contains(t, result.Update.Messages[1].Content, "2 sub-tasks: 1 completed, 1 failed")

	// Only workers that completed join the contributors.
	assert.Equal(t, []agent.Role{agent.Planner, agent.Builder}, result.Update.Contributors)

	// Workers were invoked with isolated transcripts, not the thread's.
	builderCalls := mock.RecordedFor(agent.Builder)
	require.Len(t, builderCalls, 1)
	require.Len(t, builderCalls[0].Messages, 1)
	assert.Contains(t, builderCalls[0].Messages[0].Content, "scaffold storage")
}

func TestRunStepInvalidDelegationFailsStep(t *testing.T) {
	mock := &llm.MockInvoker{
		Responses: map[agent.Role]string{
			agent.Planner: `{"tool":"delegate","worker_role":"Founder","task_description":"cannot take work"}`,
		},
	}
	r := NewRunner(mock)

	_, err := r.RunStep(context.Background(), state.New("t1"), agent.Planner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid delegation")
	assert.Contains(t, err.Error(), "Founder")
}

func TestRunStepCacheHit(t *testing.T) {
	mock := &llm.MockInvoker{DefaultContent: "cached answer"}
	cache := llm.NewMemoryCache()
	ledger := &llm.RecordingLedger{}
	r := NewRunner(mock, WithCache(cache), WithLedger(ledger))

	st := state.New("t1")
	st.Messages = append(st.Messages, state.UserMessage("same question"))

	first, err := r.RunStep(context.Background(), st, agent.Founder)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := r.RunStep(context.Background(), st, agent.Founder)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Update.Messages[0].Content, second.Update.Messages[0].Content)

	assert.Len(t, mock.Recorded, 1, "the provider is called once")

	entries := ledger.Entries()
	require.Len(t, entries, 2, "cache hits still hit the ledger")
	assert.False(t, entries[0].CacheHit)
	assert.True(t, entries[1].CacheHit)
}

func TestRunStepTimeoutIsRetryable(t *testing.T) {
	slow := invokerFunc(func(ctx context.Context, _ llm.Request) (llm.Response, error) {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	})
	r := NewRunner(slow, WithInvokeTimeout(10*time.Millisecond))

	_, err := r.RunStep(context.Background(), state.New("t1"), agent.Founder)

	var ie *llm.InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, llm.ClassTimeout, ie.Class)
	assert.True(t, llm.Retryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunStepParentCancellationPassesThrough(t *testing.T) {
	blocked := invokerFunc(func(ctx context.Context, _ llm.Request) (llm.Response, error) {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	})
	r := NewRunner(blocked, WithInvokeTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunStep(ctx, state.New("t1"), agent.Founder)
	require.Error(t, err)
	assert.False(t, llm.Retryable(err), "caller cancellation is not retryable")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestModel(t *testing.T) {
	r := NewRunner(&llm.MockInvoker{}, WithModels("default-model", map[agent.Role]string{
		agent.Builder: "big-model",
	}))

	assert.Equal(t, "big-model", r.Model(agent.Builder))
	assert.Equal(t, "default-model", r.Model(agent.Tester))
}
