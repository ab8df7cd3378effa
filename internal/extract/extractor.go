package extract

import (
	"context"
	"errors"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
)

// Extractor turns free-form proposal text into a structured proposal. The
// returned Confidence reflects how sure the extractor is about its reading;
// the compliance engine decides whether that is good enough.
type Extractor interface {
	Extract(ctx context.Context, text string) (model.ParsedProposal, error)
}

var (
	ErrNoAmount  = errors.New("no MNEE amount found in proposal text")
	ErrNoAddress = errors.New("no wallet address found in proposal text")
)
