package artifact

import (
	"encoding/json"
	"time"

	"crewflow/internal/toolcall"
)

// envelope matches the artifact tool-call payload.
type envelope struct {
	Artifact Artifact `json:"artifact"`
}

// Extract decodes artifact tool calls from a step's envelopes, stamping each
// with the producing role and creation time. Payloads that fail to decode or
// validate are skipped silently; a malformed artifact is not an artifact.
func Extract(envelopes []toolcall.Envelope, producer string) []Artifact {
	var out []Artifact
	for _, e := range toolcall.Filter(envelopes, toolcall.ToolArtifact) {
		var env envelope
		if err := json.Unmarshal(e.Payload, &env); err != nil {
			continue
		}

		a := env.Artifact
		a.Producer = producer
		a.CreatedAt = time.Now().UTC()
		if err := a.Validate(); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}
