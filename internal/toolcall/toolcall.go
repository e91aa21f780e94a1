// Package toolcall extracts structured tool-call envelopes from raw agent
// output.
//
// Agents emit tool calls as single-line JSON objects with a "tool" field
// embedded in otherwise free-form text. Scanning is deliberately tolerant:
// lines that are not JSON, JSON that is not an object, and objects without a
// recognized tool name are all skipped silently. Malformed output must never
// crash a run; it is simply not a tool call.
//
// Key types:
//   - [Envelope] - One extracted tool call with its raw payload
//
// Downstream packages decode the payload into their own request types
// (handoff requests, delegation requests, artifacts).
package toolcall

import (
	"encoding/json"
	"strings"
)

// Tool names recognized by the orchestration core. Envelopes naming other
// tools are preserved for the host's tool execution layer to interpret.
const (
	ToolHandoff  = "handoff"
	ToolDelegate = "delegate"
	ToolArtifact = "artifact"
)

// Envelope is one tool call extracted from raw output. Payload is the full
// JSON object, left raw so each consumer decodes only its own schema.
type Envelope struct {
	Tool    string
	Payload json.RawMessage
}

// header is the minimal shape decoded during scanning.
type header struct {
	Tool string `json:"tool"`
}

// Scan extracts tool-call envelopes from raw output, one line at a time, in
// order of appearance. Unparseable lines and objects without a "tool" field
// are skipped without error.
func Scan(raw string) []Envelope {
	var found []Envelope

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var h header
		if err := json.Unmarshal([]byte(line), &h); err != nil {
			// Not a tool call. Free text can look JSON-ish; move on.
			continue
		}
		if h.Tool == "" {
			continue
		}

		found = append(found, Envelope{
			Tool:    h.Tool,
			Payload: json.RawMessage(line),
		})
	}

	return found
}

// Filter returns the envelopes naming the given tool, preserving order.
func Filter(envelopes []Envelope, tool string) []Envelope {
	var out []Envelope
	for _, e := range envelopes {
		if e.Tool == tool {
			out = append(out, e)
		}
	}
	return out
}
