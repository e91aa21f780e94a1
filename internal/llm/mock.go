package llm

import (
	"context"
	"sync"

	"crewflow/internal/agent"
)

// MockInvoker implements [Invoker] for tests without calling a provider.
//
// Responses are looked up per role; FailuresFor injects a number of failures
// before a role starts succeeding, which is how retry policies are exercised.
// All requests are recorded for assertion.
type MockInvoker struct {
	mu sync.Mutex

	// Responses maps a role to the content it returns. Roles absent from
	// the map return DefaultContent.
	Responses map[agent.Role]string

	// DefaultContent is returned for roles without a configured response.
	DefaultContent string

	// FailuresFor maps a role to a queue of errors returned before the
	// configured response. Each invocation consumes one entry.
	FailuresFor map[agent.Role][]error

	// Recorded collects every request in invocation order.
	Recorded []Request
}

// Invoke records the request, honors cancellation, pops any queued failure
// for the role, and otherwise returns the configured content.
func (m *MockInvoker) Invoke(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Recorded = append(m.Recorded, req)

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	if queue := m.FailuresFor[req.Agent]; len(queue) > 0 {
		err := queue[0]
		m.FailuresFor[req.Agent] = queue[1:]
		return Response{}, err
	}

	content, ok := m.Responses[req.Agent]
	if !ok {
		content = m.DefaultContent
	}

	return Response{
		Content:   content,
		Model:     req.Model,
		TokensIn:  len(req.SystemPrompt) / 4,
		TokensOut: len(content) / 4,
	}, nil
}

// RecordedFor returns the recorded requests issued for the given role.
func (m *MockInvoker) RecordedFor(role agent.Role) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.Recorded {
		if r.Agent == role {
			out = append(out, r)
		}
	}
	return out
}
