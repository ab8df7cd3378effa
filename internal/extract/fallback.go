package extract

import (
	"context"
	"log/slog"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
)

// FallbackExtractor tries the primary extractor and falls back to the
// secondary only when the primary returns an error. A successful primary
// result with low confidence is passed through unchanged; confidence gating
// belongs to the compliance engine, not the extraction layer.
type FallbackExtractor struct {
	primary   Extractor
	secondary Extractor
	logger    *slog.Logger
}

func NewFallbackExtractor(primary, secondary Extractor, logger *slog.Logger) *FallbackExtractor {
	return &FallbackExtractor{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With("component", "fallback_extractor"),
	}
}

func (e *FallbackExtractor) Extract(ctx context.Context, text string) (model.ParsedProposal, error) {
	p, err := e.primary.Extract(ctx, text)
	if err == nil {
		return p, nil
	}
	if ctx.Err() != nil {
		return model.ParsedProposal{}, err
	}

	e.logger.Warn("primary extractor failed, falling back", "error", err)
	return e.secondary.Extract(ctx, text)
}
