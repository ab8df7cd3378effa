package extract

import (
	"context"
	"log/slog"

	"github.com/mshadianto/mnee-sentinel/internal/circuitbreaker"
	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
)

// BreakerExtractor guards an extractor with a circuit breaker so that a
// misbehaving extractor service fails fast instead of eating its full request
// timeout on every proposal. Used in front of the fallback chain: while the
// breaker is open, calls return circuitbreaker.ErrOpen immediately and the
// fallback takes over.
type BreakerExtractor struct {
	inner   Extractor
	breaker *circuitbreaker.Breaker
}

func NewBreakerExtractor(inner Extractor, cfg circuitbreaker.Config, logger *slog.Logger) *BreakerExtractor {
	log := logger.With("component", "extractor_breaker")
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to circuitbreaker.State) {
			log.Warn("extractor circuit state changed",
				"from", from.String(),
				"to", to.String(),
			)
		}
	}
	return &BreakerExtractor{
		inner:   inner,
		breaker: circuitbreaker.New(cfg),
	}
}

func (e *BreakerExtractor) Extract(ctx context.Context, text string) (model.ParsedProposal, error) {
	var parsed model.ParsedProposal
	err := e.breaker.Do(func() error {
		var innerErr error
		parsed, innerErr = e.inner.Extract(ctx, text)
		// A caller-side cancellation says nothing about extractor health.
		if innerErr != nil && ctx.Err() != nil {
			return nil
		}
		return innerErr
	})
	if err != nil {
		return model.ParsedProposal{}, err
	}
	if ctx.Err() != nil {
		return model.ParsedProposal{}, ctx.Err()
	}
	return parsed, nil
}
