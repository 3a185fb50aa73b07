// Package timeout defines centralized timeouts for every external call a chat turn makes.
package timeout

import "time"

const (
	// ProviderTimeout bounds a single completion provider call.
	ProviderTimeout = 60 * time.Second

	// AgentTimeout bounds agent and orchestrator execution.
	AgentTimeout = 2 * time.Minute

	// SummarizationTimeout bounds history and search-query summaries.
	SummarizationTimeout = 30 * time.Second

	// EmbeddingTimeout is the timeout for embedding generation.
	EmbeddingTimeout = 30 * time.Second

	// SearchTimeout bounds hybrid and web search.
	SearchTimeout = 30 * time.Second

	// SafetyTimeout bounds one content-safety analysis.
	SafetyTimeout = 10 * time.Second

	// ImageGenerationTimeout bounds one image generation.
	ImageGenerationTimeout = 2 * time.Minute

	// StoreTimeout bounds a single store operation.
	StoreTimeout = 10 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)

// Truncate shortens s to MaxTruncateLength runes for logging.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxTruncateLength {
		return s
	}
	return string(runes[:MaxTruncateLength]) + "..."
}
