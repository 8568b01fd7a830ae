package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/oriys/optionspulse/internal/domain"
)

// decodeTable maps a raw channel name to a decoder producing the task(s) it
// enqueues, mirroring the teacher's switch-based dispatch: a fixed map
// literal, no reflection, no runtime-discovered handlers.
var decodeTable = map[string]func([]byte) ([]*domain.Task, error){
	"raw:underlying":   decodeUnderlying,
	"raw:option_quote": decodeQuote,
	"raw:option_chain": decodeChain,
}

func decodeUnderlying(payload []byte) ([]*domain.Task, error) {
	var tick domain.UnderlyingTick
	if err := json.Unmarshal(payload, &tick); err != nil {
		return nil, fmt.Errorf("decode underlying tick: %w", err)
	}
	if err := validateUnderlying(&tick); err != nil {
		return nil, err
	}

	task, err := newTask(domain.TaskEnrichUnderlying, &tick)
	if err != nil {
		return nil, err
	}
	return []*domain.Task{task}, nil
}

func decodeQuote(payload []byte) ([]*domain.Task, error) {
	var quote domain.OptionQuote
	if err := json.Unmarshal(payload, &quote); err != nil {
		return nil, fmt.Errorf("decode option quote: %w", err)
	}
	if err := validateQuote(&quote); err != nil {
		return nil, err
	}

	task, err := newTask(domain.TaskEnrichQuote, &quote)
	if err != nil {
		return nil, err
	}
	return []*domain.Task{task}, nil
}

// decodeChain produces two tasks per §4.1: enrich_option_chain AND
// recompute_iv_surface.
func decodeChain(payload []byte) ([]*domain.Task, error) {
	var chain domain.OptionChain
	if err := json.Unmarshal(payload, &chain); err != nil {
		return nil, fmt.Errorf("decode option chain: %w", err)
	}
	if err := validateChain(&chain); err != nil {
		return nil, err
	}

	chainTask, err := newTask(domain.TaskEnrichChain, &chain)
	if err != nil {
		return nil, err
	}
	ivTask, err := newTask(domain.TaskIVSurface, &domain.IVSurfaceArgs{Product: chain.Product})
	if err != nil {
		return nil, err
	}
	return []*domain.Task{chainTask, ivTask}, nil
}

func validateUnderlying(tick *domain.UnderlyingTick) error {
	if tick.Product == "" {
		return fmt.Errorf("underlying tick missing product")
	}
	if tick.GeneratedAt.IsZero() {
		return fmt.Errorf("underlying tick missing generated_at")
	}
	if tick.TickID == 0 {
		return fmt.Errorf("underlying tick missing tick_id")
	}
	return nil
}

func validateQuote(quote *domain.OptionQuote) error {
	if quote.Product == "" {
		return fmt.Errorf("option quote missing product")
	}
	if quote.Symbol == "" {
		return fmt.Errorf("option quote missing symbol")
	}
	if quote.GeneratedAt.IsZero() {
		return fmt.Errorf("option quote missing generated_at")
	}
	return nil
}

func validateChain(chain *domain.OptionChain) error {
	if chain.Product == "" {
		return fmt.Errorf("option chain missing product")
	}
	if chain.GeneratedAt.IsZero() {
		return fmt.Errorf("option chain missing generated_at")
	}
	if len(chain.Strikes) == 0 {
		return fmt.Errorf("option chain missing strikes")
	}
	return nil
}
