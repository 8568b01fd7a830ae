package enrichment

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriys/optionspulse/internal/domain"
)

// four is the rounding scale applied to every ratio published to clients.
const four = 4

// PutCallRatios computes open-interest and volume put/call ratios for a
// chain. A zero call-side denominator leaves the corresponding ratio nil
// rather than dividing by zero.
func PutCallRatios(chain *domain.OptionChain) (oi, vol *decimal.Decimal) {
	var callOI, putOI, callVol, putVol int64
	for _, c := range chain.Calls {
		callOI += c.OpenInterest
		callVol += c.Volume
	}
	for _, p := range chain.Puts {
		putOI += p.OpenInterest
		putVol += p.Volume
	}

	if callOI > 0 {
		r := decimal.NewFromInt(putOI).DivRound(decimal.NewFromInt(callOI), four)
		oi = &r
	}
	if callVol > 0 {
		r := decimal.NewFromInt(putVol).DivRound(decimal.NewFromInt(callVol), four)
		vol = &r
	}
	return oi, vol
}

// ATMStrike returns the strike closest to spot. On an equidistant tie
// between two strikes, the larger strike wins.
func ATMStrike(strikes []decimal.Decimal, spot decimal.Decimal) decimal.Decimal {
	best := strikes[0]
	bestDist := best.Sub(spot).Abs()
	for _, k := range strikes[1:] {
		dist := k.Sub(spot).Abs()
		if dist.LessThan(bestDist) || (dist.Equal(bestDist) && k.GreaterThan(best)) {
			best = k
			bestDist = dist
		}
	}
	return best
}

// ATMStraddlePrice returns the sum of the ATM call and put last prices. A
// missing leg contributes zero.
func ATMStraddlePrice(chain *domain.OptionChain, atm decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, c := range chain.Calls {
		if c.Strike.Equal(atm) {
			total = total.Add(c.Last)
		}
	}
	for _, p := range chain.Puts {
		if p.Strike.Equal(atm) {
			total = total.Add(p.Last)
		}
	}
	return total
}

// MaxPainStrike returns the strike at which option writers collectively
// lose the least, computed by summing intrinsic payouts across every
// holder strike for each candidate expiry strike (O(n^2) over the strike
// ladder, which is small enough per chain to make this cheap). Ties are
// broken by distance to spot, then by the smaller strike.
func MaxPainStrike(chain *domain.OptionChain, spot decimal.Decimal) decimal.Decimal {
	strikes := chain.Strikes
	best := strikes[0]
	bestPain := totalPain(chain, best)
	bestDist := best.Sub(spot).Abs()

	for _, candidate := range strikes[1:] {
		pain := totalPain(chain, candidate)
		dist := candidate.Sub(spot).Abs()

		switch {
		case pain.LessThan(bestPain):
			best, bestPain, bestDist = candidate, pain, dist
		case pain.Equal(bestPain):
			if dist.LessThan(bestDist) || (dist.Equal(bestDist) && candidate.LessThan(best)) {
				best, bestPain, bestDist = candidate, pain, dist
			}
		}
	}
	return best
}

// totalPain sums the intrinsic value writers would owe at settlement price
// settle across every call and put in the chain.
func totalPain(chain *domain.OptionChain, settle decimal.Decimal) decimal.Decimal {
	pain := decimal.Zero
	for _, c := range chain.Calls {
		if settle.GreaterThan(c.Strike) {
			pain = pain.Add(settle.Sub(c.Strike).Mul(decimal.NewFromInt(c.OpenInterest)))
		}
	}
	for _, p := range chain.Puts {
		if settle.LessThan(p.Strike) {
			pain = pain.Add(p.Strike.Sub(settle).Mul(decimal.NewFromInt(p.OpenInterest)))
		}
	}
	return pain
}

// OTMBuildup returns the flat sum of open interest held in out-of-the-money
// calls and puts (strictly above spot for calls, strictly below spot for
// puts). This is a point-in-time sum, not a delta against the prior
// snapshot.
func OTMBuildup(chain *domain.OptionChain, spot decimal.Decimal) (callOTM, putOTM int64) {
	for _, c := range chain.Calls {
		if c.Strike.GreaterThan(spot) {
			callOTM += c.OpenInterest
		}
	}
	for _, p := range chain.Puts {
		if p.Strike.LessThan(spot) {
			putOTM += p.OpenInterest
		}
	}
	return callOTM, putOTM
}

// TotalOpenInterest sums open interest across all calls and all puts.
func TotalOpenInterest(chain *domain.OptionChain) (callOI, putOI int64) {
	for _, c := range chain.Calls {
		callOI += c.OpenInterest
	}
	for _, p := range chain.Puts {
		putOI += p.OpenInterest
	}
	return callOI, putOI
}

// AggregateOHLC folds a time-ordered slice of ticks into one OHLC window. The
// caller supplies window bounds so an empty tick slice still yields a window
// with NumTicks == 0 and zero prices.
func AggregateOHLC(product string, windowMinutes int, start, end time.Time, ticks []domain.UnderlyingTick) domain.OHLCWindow {
	w := domain.OHLCWindow{
		Product:       product,
		WindowMinutes: windowMinutes,
		StartTime:     start,
		EndTime:       end,
	}
	if len(ticks) == 0 {
		return w
	}

	w.Open = ticks[0].Price
	w.Close = ticks[len(ticks)-1].Price
	w.High = ticks[0].Price
	w.Low = ticks[0].Price
	for _, t := range ticks[1:] {
		if t.Price.GreaterThan(w.High) {
			w.High = t.Price
		}
		if t.Price.LessThan(w.Low) {
			w.Low = t.Price
		}
	}
	w.NumTicks = len(ticks)
	return w
}

// BuildVolatilitySurface groups a lookback window's quotes by expiry, sorts
// each expiry's strikes ascending, and averages IV per expiry. Expiries are
// returned in chronological order.
func BuildVolatilitySurface(product string, quotes []domain.OptionQuote, generatedAt time.Time) domain.VolatilitySurface {
	byExpiry := map[time.Time][]domain.OptionQuote{}
	for _, q := range quotes {
		byExpiry[q.Expiry] = append(byExpiry[q.Expiry], q)
	}

	expiries := make([]time.Time, 0, len(byExpiry))
	for exp := range byExpiry {
		expiries = append(expiries, exp)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	slices := make([]domain.ExpiryIVSlice, 0, len(expiries))
	for _, exp := range expiries {
		group := byExpiry[exp]
		sort.Slice(group, func(i, j int) bool { return group[i].Strike.LessThan(group[j].Strike) })

		strikes := make([]decimal.Decimal, len(group))
		ivs := make([]decimal.Decimal, len(group))
		sum := decimal.Zero
		for i, q := range group {
			strikes[i] = q.Strike
			ivs[i] = q.IV
			sum = sum.Add(q.IV)
		}
		avg := sum.DivRound(decimal.NewFromInt(int64(len(group))), four)

		slices = append(slices, domain.ExpiryIVSlice{
			Expiry:  exp,
			Strikes: strikes,
			IVs:     ivs,
			AvgIV:   avg,
		})
	}

	return domain.VolatilitySurface{
		Product:     product,
		Expiries:    slices,
		GeneratedAt: generatedAt,
	}
}
