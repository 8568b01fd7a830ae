package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/optionspulse/internal/domain"
)

// enrichUnderlying implements §4.2.2: persist the tick, cache+publish the
// latest price, and schedule the subsidiary OHLC windows.
func (p *Pool) enrichUnderlying(ctx context.Context, task *domain.Task) Result {
	var tick domain.UnderlyingTick
	if err := decodeArgs(task, &tick); err != nil {
		return Permanent(err)
	}

	key := processedUnderlyingKey(tick.Product, tick.TickID)
	done, err := p.gate(ctx, key)
	if err != nil {
		return Transient(err)
	}
	if done {
		return OkResult()
	}

	tick.ProcessedAt = time.Now()
	if err := p.store.InsertTick(ctx, &tick); err != nil {
		return Transient(fmt.Errorf("insert tick: %w", err))
	}

	update := domain.UnderlyingUpdate{
		Product:     tick.Product,
		Price:       tick.Price,
		GeneratedAt: tick.GeneratedAt,
		ProcessedAt: tick.ProcessedAt,
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return Permanent(fmt.Errorf("marshal underlying update: %w", err))
	}

	if err := p.bus.Set(ctx, latestUnderlyingKey(tick.Product), payload, p.cfg.CacheTTL.LatestUnderlying); err != nil {
		return Transient(fmt.Errorf("cache underlying update: %w", err))
	}
	if err := p.bus.Publish(ctx, channelEnrichedUnderlying, payload); err != nil {
		return Transient(fmt.Errorf("publish underlying update: %w", err))
	}

	for _, w := range p.cfg.Worker.OHLCWindows {
		if err := p.enqueueOHLC(ctx, tick.Product, w); err != nil {
			return Transient(fmt.Errorf("schedule ohlc(%d): %w", w, err))
		}
	}

	if err := p.markDone(ctx, key); err != nil {
		return Transient(fmt.Errorf("mark tick processed: %w", err))
	}
	return OkResult()
}

// enqueueOHLC schedules an ohlc(product, windowMinutes) task.
func (p *Pool) enqueueOHLC(ctx context.Context, product string, windowMinutes int) error {
	args, err := json.Marshal(domain.OHLCArgs{Product: product, WindowMinutes: windowMinutes})
	if err != nil {
		return err
	}
	task := &domain.Task{
		ID:         fmt.Sprintf("ohlc:%s:%dm:%d", product, windowMinutes, time.Now().UnixNano()),
		Kind:       domain.TaskOHLC,
		Args:       args,
		EnqueuedAt: time.Now(),
	}
	return p.bus.Enqueue(ctx, Queue, task)
}

// enrichQuote persists a single option quote. No dedicated enriched channel
// is defined for individual quotes (only underlyings and chains publish);
// quotes feed the IV surface via store range queries instead.
func (p *Pool) enrichQuote(ctx context.Context, task *domain.Task) Result {
	var quote domain.OptionQuote
	if err := decodeArgs(task, &quote); err != nil {
		return Permanent(err)
	}

	key := processedQuoteKey(quote.Symbol, quote.GeneratedAt.Format(time.RFC3339Nano))
	done, err := p.gate(ctx, key)
	if err != nil {
		return Transient(err)
	}
	if done {
		return OkResult()
	}

	if err := p.store.InsertQuote(ctx, &quote); err != nil {
		return Transient(fmt.Errorf("insert quote: %w", err))
	}

	if err := p.markDone(ctx, key); err != nil {
		return Transient(fmt.Errorf("mark quote processed: %w", err))
	}
	return OkResult()
}

// enrichChain implements §4.2.3's seven-step algorithm.
func (p *Pool) enrichChain(ctx context.Context, task *domain.Task) Result {
	var chain domain.OptionChain
	if err := decodeArgs(task, &chain); err != nil {
		return Permanent(err)
	}
	if len(chain.Strikes) == 0 {
		return Permanent(fmt.Errorf("option chain for %s has no strikes", chain.Product))
	}

	key := processedChainKey(chain.Product, chain.Expiry.Format(time.RFC3339Nano), chain.GeneratedAt.Format(time.RFC3339Nano))
	done, err := p.gate(ctx, key)
	if err != nil {
		return Transient(err)
	}
	if done {
		return OkResult()
	}

	callOI, putOI := TotalOpenInterest(&chain)
	pcrOI, pcrVol := PutCallRatios(&chain)
	atm := ATMStrike(chain.Strikes, chain.SpotPrice)
	straddle := ATMStraddlePrice(&chain, atm)
	maxPain := MaxPainStrike(&chain, chain.SpotPrice)
	callOTM, putOTM := OTMBuildup(&chain, chain.SpotPrice)

	enriched := domain.EnrichedChain{
		OptionChain:      chain,
		PCROI:            pcrOI,
		PCRVolume:        pcrVol,
		ATMStrike:        atm,
		ATMStraddlePrice: straddle,
		MaxPainStrike:    maxPain,
		TotalCallOI:      callOI,
		TotalPutOI:       putOI,
		CallBuildupOTM:   callOTM,
		PutBuildupOTM:    putOTM,
		ProcessedAt:      time.Now(),
	}

	if err := p.store.InsertChain(ctx, &enriched); err != nil {
		return Transient(fmt.Errorf("insert chain: %w", err))
	}

	fullPayload, err := json.Marshal(&enriched)
	if err != nil {
		return Permanent(fmt.Errorf("marshal enriched chain: %w", err))
	}
	expiryTag := chain.Expiry.Format(time.RFC3339Nano)
	if err := p.bus.Set(ctx, latestChainKey(chain.Product, expiryTag), fullPayload, p.cfg.CacheTTL.LatestChain); err != nil {
		return Transient(fmt.Errorf("cache chain: %w", err))
	}

	summary := domain.PCRSummary{PCROI: pcrOI, PCRVolume: pcrVol, GeneratedAt: enriched.ProcessedAt}
	summaryPayload, err := json.Marshal(summary)
	if err != nil {
		return Permanent(fmt.Errorf("marshal pcr summary: %w", err))
	}
	if err := p.bus.Set(ctx, latestPCRKey(chain.Product, expiryTag), summaryPayload, p.cfg.CacheTTL.LatestPCR); err != nil {
		return Transient(fmt.Errorf("cache pcr summary: %w", err))
	}

	if err := p.bus.Publish(ctx, channelEnrichedChain, fullPayload); err != nil {
		return Transient(fmt.Errorf("publish enriched chain: %w", err))
	}

	if err := p.markDone(ctx, key); err != nil {
		return Transient(fmt.Errorf("mark chain processed: %w", err))
	}
	return OkResult()
}

// computeOHLC implements §4.2.4: a derived, non-persisted window aggregate.
func (p *Pool) computeOHLC(ctx context.Context, task *domain.Task) Result {
	var args domain.OHLCArgs
	if err := decodeArgs(task, &args); err != nil {
		return Permanent(err)
	}

	end := time.Now()
	start := end.Add(-time.Duration(args.WindowMinutes) * time.Minute)
	ticks, err := p.store.TickRange(ctx, args.Product, start, end)
	if err != nil {
		return Transient(fmt.Errorf("query tick range: %w", err))
	}
	if len(ticks) == 0 {
		return OkResult()
	}

	window := AggregateOHLC(args.Product, args.WindowMinutes, start, end, ticks)
	payload, err := json.Marshal(window)
	if err != nil {
		return Permanent(fmt.Errorf("marshal ohlc window: %w", err))
	}

	ttl := time.Duration(args.WindowMinutes) * time.Minute
	if err := p.bus.Set(ctx, ohlcKey(args.Product, args.WindowMinutes), payload, ttl); err != nil {
		return Transient(fmt.Errorf("cache ohlc window: %w", err))
	}
	return OkResult()
}

// computeIVSurface implements §4.2.5.
func (p *Pool) computeIVSurface(ctx context.Context, task *domain.Task) Result {
	var args domain.IVSurfaceArgs
	if err := decodeArgs(task, &args); err != nil {
		return Permanent(err)
	}

	end := time.Now()
	start := end.Add(-p.cfg.Worker.IVLookback)
	quotes, err := p.store.QuoteRange(ctx, args.Product, start, end)
	if err != nil {
		return Transient(fmt.Errorf("query quote range: %w", err))
	}

	surface := BuildVolatilitySurface(args.Product, quotes, end)
	payload, err := json.Marshal(surface)
	if err != nil {
		return Permanent(fmt.Errorf("marshal iv surface: %w", err))
	}

	if err := p.bus.Set(ctx, ivSurfaceKey(args.Product), payload, p.cfg.CacheTTL.IVSurface); err != nil {
		return Transient(fmt.Errorf("cache iv surface: %w", err))
	}
	return OkResult()
}

// gate reports whether key's fingerprint has already been recorded as
// processed. It only checks; the caller must still do its work and then
// call markDone once every side effect has succeeded. Marking the key
// before the work runs would let a transiently-failing task see its own
// claim on retry and return success without ever persisting, caching, or
// publishing anything, breaking the 5s/10s/20s retry schedule and the DLQ
// path (§4.2.1, §8 scenario 6).
func (p *Pool) gate(ctx context.Context, key string) (done bool, err error) {
	return p.bus.Exists(ctx, key)
}

// markDone records key as processed so a later duplicate delivery of the
// same task fingerprint short-circuits via gate instead of repeating the
// work. The key's TTL bounds how long that de-duplication holds, consistent
// with the non-goal of synchronous store/cache consistency.
func (p *Pool) markDone(ctx context.Context, key string) error {
	return p.bus.Set(ctx, key, []byte("1"), p.cfg.CacheTTL.Idempotency)
}
