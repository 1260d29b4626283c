package research

import (
	"context"
	"fmt"
	"strings"
)

// LocalBackend is a deterministic offline backend for development and demo
// environments without an LLM endpoint. It produces a placeholder report
// listing the requested topics.
type LocalBackend struct{}

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (b *LocalBackend) Research(_ context.Context, req Request) (string, error) {
	var sb strings.Builder

	sb.WriteString("Research Report\n\n")

	for i, topic := range req.Topics {
		fmt.Fprintf(&sb, "%d. %s\nNo analyst commentary available in local mode.\n\n", i+1, topic)
	}

	if len(req.Keywords) > 0 {
		fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(req.Keywords, ", "))
	}

	return strings.TrimSpace(sb.String()), nil
}
