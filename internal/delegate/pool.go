package delegate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"crewflow/internal/agent"
	"crewflow/internal/toolcall"
)

// WorkerFunc executes one sub-task as the given worker role and returns its
// result. Errors mark the task failed; they do not abort the batch.
type WorkerFunc func(ctx context.Context, task SubTask) (string, error)

// Run executes every sub-task in the batch concurrently and blocks until all
// of them reach a terminal state (the aggregation barrier). Each task is
// mutated only by its own goroutine; Run's return is the happens-before edge
// after which results may be read.
//
// Worker errors are recorded on the task, never returned. Run itself fails
// only when ctx is cancelled, in which case tasks that never started remain
// pending.
func Run(ctx context.Context, batch *Batch, work WorkerFunc) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := range batch.Tasks {
		task := &batch.Tasks[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			task.start()
			result, err := work(ctx, *task)
			if err != nil {
				if ctx.Err() != nil {
					// Cancellation is not a task verdict. Leave the task
					// non-terminal and surface the cancellation instead.
					return ctx.Err()
				}
				task.fail(err)
				return nil
			}
			task.complete(result)
			return nil
		})
	}

	return g.Wait()
}

// Summary reports the outcome of a delegation batch after the barrier.
type Summary struct {
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Details   []SubTask `json:"details"`
}

// Summarize aggregates a finished batch. Call only after [Run] has returned
// (or [Batch.AllComplete] holds); results of non-terminal tasks are not read.
func Summarize(batch *Batch) Summary {
	s := Summary{Total: len(batch.Tasks)}
	for _, t := range batch.Tasks {
		switch t.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
		s.Details = append(s.Details, t)
	}
	return s
}

// Text renders the summary as a transcript-ready report, listing completed
// and failed tasks separately.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Delegated %d sub-tasks: %d completed, %d failed.", s.Total, s.Completed, s.Failed)
	for _, t := range s.Details {
		switch t.Status {
		case StatusCompleted:
			fmt.Fprintf(&b, "\n[completed] %s: %s", t.Worker, t.Description)
		case StatusFailed:
			fmt.Fprintf(&b, "\n[failed] %s: %s (%s)", t.Worker, t.Description, t.Error)
		}
	}
	return b.String()
}

// Extract parses delegate tool calls from a step's envelopes. Malformed
// payloads are skipped silently; validation of the worker role happens in
// [NewBatch] so explicit-but-wrong delegations still surface as errors.
// Roles without the delegate capability get no requests back regardless of
// what their output claims.
func Extract(envelopes []toolcall.Envelope, supervisor agent.Role) []Request {
	if !supervisor.Can(agent.CapDelegate) {
		return nil
	}

	var out []Request
	for _, e := range toolcall.Filter(envelopes, toolcall.ToolDelegate) {
		var req Request
		if err := json.Unmarshal(e.Payload, &req); err != nil {
			continue
		}
		if req.WorkerRole == "" || req.TaskDescription == "" {
			continue
		}
		out = append(out, req)
	}
	return out
}
