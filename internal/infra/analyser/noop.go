package analyser

import (
	"context"
	"strings"

	"traceback-analyser/internal/domain/entity"
)

const noopSummary = "Analysis is disabled in this environment. " +
	"The trace was compacted and accepted, but no model was asked to explain it."

// NoOp streams a fixed text word by word. It is used for local development
// and when no provider key is configured.
type NoOp struct{}

func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) Name() string { return ProviderNoOp }

func (n *NoOp) Stream(ctx context.Context, req Request, emit func(string) error) (entity.Usage, error) {
	usage := entity.Usage{InputTokens: estimateTokens(BuildPrompt(req.Variant, req.Trace).User)}
	words := strings.SplitAfter(noopSummary, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return usage, err
		}
		if err := emit(w); err != nil {
			return usage, err
		}
		usage.GeneratedTokens++
	}
	return usage, nil
}
