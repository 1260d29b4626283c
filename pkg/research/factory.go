package research

import (
	"fmt"
	"log/slog"
	"time"
)

// Config selects and configures a research backend. Backend polymorphism
// lives entirely behind the Researcher interface; the engine never knows
// which provider is configured.
type Config struct {
	Backend string // "llm" (default) or "local"
	LLM     LLMConfig
	Timeout time.Duration
}

// NewResearcher builds the configured backend wrapped in the timeout
// orchestrator.
func NewResearcher(config Config, logger *slog.Logger) (Researcher, error) {
	var (
		backend Researcher
		err     error
	)

	switch config.Backend {
	case "", "llm":
		backend, err = NewLLMBackend(config.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create llm backend: %w", err)
		}
	case "local":
		backend = NewLocalBackend()
	default:
		return nil, fmt.Errorf("unsupported research backend: %s", config.Backend)
	}

	return NewOrchestrator(backend, config.Timeout, logger), nil
}
