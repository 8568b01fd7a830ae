package enrichment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oriys/optionspulse/internal/domain"
)

// Handler runs one task to completion against the given payload.
type Handler func(ctx context.Context, task *domain.Task) Result

// dispatch selects the handler for task.Kind. An unknown kind is a
// permanent failure: retrying it can never succeed.
func (p *Pool) dispatch(ctx context.Context, task *domain.Task) Result {
	switch task.Kind {
	case domain.TaskEnrichUnderlying:
		return p.enrichUnderlying(ctx, task)
	case domain.TaskEnrichQuote:
		return p.enrichQuote(ctx, task)
	case domain.TaskEnrichChain:
		return p.enrichChain(ctx, task)
	case domain.TaskOHLC:
		return p.computeOHLC(ctx, task)
	case domain.TaskIVSurface:
		return p.computeIVSurface(ctx, task)
	default:
		return Permanent(fmt.Errorf("unknown task kind %q", task.Kind))
	}
}

// decodeArgs unmarshals task.Args into dst, reporting decode failures as
// permanent since a malformed payload will never decode on retry.
func decodeArgs(task *domain.Task, dst any) error {
	if err := json.Unmarshal(task.Args, dst); err != nil {
		return fmt.Errorf("decode args for %s: %w", task.Kind, err)
	}
	return nil
}
