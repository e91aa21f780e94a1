package llm

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"crewflow/internal/agent"
)

// Usage is one per-call cost report.
type Usage struct {
	ThreadID  string
	Agent     agent.Role
	Model     string
	TokensIn  int
	TokensOut int
	Latency   time.Duration
	CacheHit  bool
}

// Ledger receives fire-and-forget usage reports. Record returns nothing: a
// ledger failure must never abort orchestration, so implementations swallow
// their own errors.
type Ledger interface {
	Record(u Usage)
}

// NopLedger discards every report.
type NopLedger struct{}

// Record discards u.
func (NopLedger) Record(Usage) {}

// LogLedger reports usage as structured log entries.
type LogLedger struct {
	logger *zap.Logger
}

// NewLogLedger creates a [LogLedger] writing to the given logger.
func NewLogLedger(logger *zap.Logger) *LogLedger {
	return &LogLedger{logger: logger}
}

// Record logs one usage entry.
func (l *LogLedger) Record(u Usage) {
	l.logger.Info("llm usage",
		zap.String("thread", u.ThreadID),
		zap.String("agent", string(u.Agent)),
		zap.String("model", u.Model),
		zap.Int("tokens_in", u.TokensIn),
		zap.Int("tokens_out", u.TokensOut),
		zap.Duration("latency", u.Latency),
		zap.Bool("cache_hit", u.CacheHit),
	)
}

// RecordingLedger accumulates reports in memory for test assertions.
type RecordingLedger struct {
	mu      sync.Mutex
	entries []Usage
}

// Record appends u.
func (l *RecordingLedger) Record(u Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, u)
}

// Entries returns a copy of the recorded reports.
func (l *RecordingLedger) Entries() []Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Usage, len(l.entries))
	copy(out, l.entries)
	return out
}
