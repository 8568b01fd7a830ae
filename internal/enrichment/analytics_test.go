package enrichment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oriys/optionspulse/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleChain() *domain.OptionChain {
	return &domain.OptionChain{
		Product:   "NIFTY",
		SpotPrice: dec("100"),
		Strikes:   []decimal.Decimal{dec("90"), dec("100"), dec("110")},
		Calls: []domain.OptionQuote{
			{Strike: dec("90"), Last: dec("12"), OpenInterest: 100, Volume: 10},
			{Strike: dec("100"), Last: dec("5"), OpenInterest: 300, Volume: 50},
			{Strike: dec("110"), Last: dec("1"), OpenInterest: 200, Volume: 20},
		},
		Puts: []domain.OptionQuote{
			{Strike: dec("90"), Last: dec("1"), OpenInterest: 150, Volume: 15},
			{Strike: dec("100"), Last: dec("4"), OpenInterest: 400, Volume: 60},
			{Strike: dec("110"), Last: dec("11"), OpenInterest: 50, Volume: 5},
		},
	}
}

func TestPutCallRatios(t *testing.T) {
	chain := sampleChain()
	oi, vol := PutCallRatios(chain)

	// callOI = 100+300+200 = 600, putOI = 150+400+50 = 600 -> ratio 1
	if oi == nil || !oi.Equal(dec("1")) {
		t.Fatalf("pcr_oi = %v, want 1", oi)
	}
	// callVol = 10+50+20 = 80, putVol = 15+60+5 = 80 -> ratio 1
	if vol == nil || !vol.Equal(dec("1")) {
		t.Fatalf("pcr_volume = %v, want 1", vol)
	}
}

func TestPutCallRatiosZeroDenominator(t *testing.T) {
	chain := &domain.OptionChain{
		Calls: []domain.OptionQuote{{Strike: dec("100"), OpenInterest: 0, Volume: 0}},
		Puts:  []domain.OptionQuote{{Strike: dec("100"), OpenInterest: 10, Volume: 5}},
	}
	oi, vol := PutCallRatios(chain)
	if oi != nil {
		t.Fatalf("pcr_oi = %v, want nil on zero call OI", oi)
	}
	if vol != nil {
		t.Fatalf("pcr_volume = %v, want nil on zero call volume", vol)
	}
}

func TestATMStrike(t *testing.T) {
	strikes := []decimal.Decimal{dec("90"), dec("100"), dec("110")}

	if got := ATMStrike(strikes, dec("100")); !got.Equal(dec("100")) {
		t.Fatalf("ATMStrike exact match = %v, want 100", got)
	}
	if got := ATMStrike(strikes, dec("103")); !got.Equal(dec("100")) {
		t.Fatalf("ATMStrike nearest = %v, want 100", got)
	}
	// 95 is equidistant from 90 and 100: larger strike wins the tie.
	if got := ATMStrike(strikes, dec("95")); !got.Equal(dec("100")) {
		t.Fatalf("ATMStrike tie-break = %v, want 100 (larger strike)", got)
	}
}

func TestATMStraddlePrice(t *testing.T) {
	chain := sampleChain()
	atm := ATMStrike(chain.Strikes, chain.SpotPrice)
	if !atm.Equal(dec("100")) {
		t.Fatalf("unexpected ATM strike %v", atm)
	}
	got := ATMStraddlePrice(chain, atm)
	if !got.Equal(dec("9")) { // 5 (call) + 4 (put)
		t.Fatalf("ATMStraddlePrice = %v, want 9", got)
	}
}

func TestMaxPainStrike(t *testing.T) {
	chain := sampleChain()
	got := MaxPainStrike(chain, chain.SpotPrice)
	if !got.Equal(dec("100")) {
		t.Fatalf("MaxPainStrike = %v, want 100", got)
	}
}

func TestOTMBuildup(t *testing.T) {
	chain := sampleChain()
	callOTM, putOTM := OTMBuildup(chain, dec("100"))
	if callOTM != 200 { // only the 110 strike call is above spot
		t.Fatalf("callOTM = %d, want 200", callOTM)
	}
	if putOTM != 150 { // only the 90 strike put is below spot
		t.Fatalf("putOTM = %d, want 150", putOTM)
	}
}

func TestTotalOpenInterest(t *testing.T) {
	chain := sampleChain()
	callOI, putOI := TotalOpenInterest(chain)
	if callOI != 600 || putOI != 600 {
		t.Fatalf("TotalOpenInterest = (%d, %d), want (600, 600)", callOI, putOI)
	}
}

func TestAggregateOHLC(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)

	ticks := []domain.UnderlyingTick{
		{Product: "NIFTY", Price: dec("100"), GeneratedAt: start},
		{Product: "NIFTY", Price: dec("105"), GeneratedAt: start.Add(time.Minute)},
		{Product: "NIFTY", Price: dec("95"), GeneratedAt: start.Add(2 * time.Minute)},
		{Product: "NIFTY", Price: dec("102"), GeneratedAt: end},
	}

	w := AggregateOHLC("NIFTY", 5, start, end, ticks)
	if !w.Open.Equal(dec("100")) {
		t.Fatalf("Open = %v, want 100", w.Open)
	}
	if !w.Close.Equal(dec("102")) {
		t.Fatalf("Close = %v, want 102", w.Close)
	}
	if !w.High.Equal(dec("105")) {
		t.Fatalf("High = %v, want 105", w.High)
	}
	if !w.Low.Equal(dec("95")) {
		t.Fatalf("Low = %v, want 95", w.Low)
	}
	if w.NumTicks != 4 {
		t.Fatalf("NumTicks = %d, want 4", w.NumTicks)
	}
}

func TestAggregateOHLCEmptyWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	w := AggregateOHLC("NIFTY", 1, start, end, nil)
	if w.NumTicks != 0 {
		t.Fatalf("NumTicks = %d, want 0 on empty tick slice", w.NumTicks)
	}
	if !w.Open.IsZero() || !w.High.IsZero() || !w.Low.IsZero() || !w.Close.IsZero() {
		t.Fatalf("expected zero-value prices for an empty window, got %+v", w)
	}
}

func TestBuildVolatilitySurface(t *testing.T) {
	near := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	far := near.AddDate(0, 1, 0)
	generatedAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

	quotes := []domain.OptionQuote{
		{Expiry: far, Strike: dec("110"), IV: dec("0.30")},
		{Expiry: near, Strike: dec("100"), IV: dec("0.20")},
		{Expiry: near, Strike: dec("90"), IV: dec("0.10")},
	}

	surface := BuildVolatilitySurface("NIFTY", quotes, generatedAt)
	if len(surface.Expiries) != 2 {
		t.Fatalf("len(Expiries) = %d, want 2", len(surface.Expiries))
	}

	nearSlice := surface.Expiries[0]
	if !nearSlice.Expiry.Equal(near) {
		t.Fatalf("Expiries[0] = %v, want the nearer expiry first", nearSlice.Expiry)
	}
	if !nearSlice.Strikes[0].Equal(dec("90")) || !nearSlice.Strikes[1].Equal(dec("100")) {
		t.Fatalf("near expiry strikes not sorted ascending: %v", nearSlice.Strikes)
	}
	if !nearSlice.AvgIV.Equal(dec("0.15")) {
		t.Fatalf("near expiry AvgIV = %v, want 0.15", nearSlice.AvgIV)
	}

	farSlice := surface.Expiries[1]
	if !farSlice.AvgIV.Equal(dec("0.3")) {
		t.Fatalf("far expiry AvgIV = %v, want 0.3", farSlice.AvgIV)
	}
}

func TestBuildVolatilitySurfaceEmpty(t *testing.T) {
	generatedAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	surface := BuildVolatilitySurface("NIFTY", nil, generatedAt)
	if len(surface.Expiries) != 0 {
		t.Fatalf("len(Expiries) = %d, want 0 for an empty lookback", len(surface.Expiries))
	}
}
