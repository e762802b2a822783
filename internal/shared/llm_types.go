package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by a provider call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// AgentMeta holds operational metadata for one provider attempt.
// Failed attempts are reported too, with Success false.
type AgentMeta struct {
	AgentName string
	Provider  string
	Usage     TokenUsage
	Latency   time.Duration
	Success   bool
}

// UsageRecorder receives metadata for every provider attempt.
type UsageRecorder interface {
	RecordMeta(meta AgentMeta) error
}
