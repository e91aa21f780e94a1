// Package llm defines the boundary to the external model-invocation service
// and its supporting collaborators (response cache, usage ledger).
//
// The orchestration core never talks to a provider SDK directly; it depends
// on the [Invoker] interface and classifies failures with [InvocationError].
// Whether a failure is retried is the caller's policy, informed by
// [Retryable].
//
// Key types:
//   - [Invoker] - One request, one response, or a classified error
//   - [InvocationError] - Failure with a retryable-or-fatal class
//   - [Cache] - Optional pre-check that skips an invocation on a hit
//   - [Ledger] - Fire-and-forget usage reporting
//
// For testing, [MockInvoker] records requests and plays back configured
// responses. [ScriptedInvoker] produces deterministic per-role output so the
// CLI and integration tests can drive a full run without a provider.
package llm

import (
	"context"
	"time"

	"crewflow/internal/agent"
	"crewflow/internal/state"
)

// Request is one model invocation on behalf of an agent step.
type Request struct {
	// ThreadID identifies the conversation thread, for the ledger.
	ThreadID string

	// Agent is the roster role this invocation acts as.
	Agent agent.Role

	// SystemPrompt is the role's instruction preamble.
	SystemPrompt string

	// Messages is the transcript supplied as model context.
	Messages []state.Message

	// Model is the target model identifier.
	Model string
}

// Response is one model response message.
type Response struct {
	// Content is the raw response text, possibly containing tool-call
	// envelopes for the toolcall package to extract.
	Content string

	// Model echoes the model that produced the response.
	Model string

	// TokensIn and TokensOut are the provider-reported token counts.
	TokensIn  int
	TokensOut int

	// Latency is the wall-clock duration of the invocation.
	Latency time.Duration
}

// Invoker is the external LLM service boundary. Invoke blocks until the
// provider responds, the context is cancelled, or the call fails with an
// [InvocationError]. Implementations must honor ctx: a cancelled invocation
// must return promptly so the orchestrator can discard the step cleanly.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}
