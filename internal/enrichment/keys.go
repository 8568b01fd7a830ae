package enrichment

import "fmt"

// Cache key and pub/sub channel builders, matching §6's key/channel tables.

func latestUnderlyingKey(product string) string {
	return fmt.Sprintf("latest:underlying:%s", product)
}

func latestChainKey(product, expiry string) string {
	return fmt.Sprintf("latest:chain:%s:%s", product, expiry)
}

func latestPCRKey(product, expiry string) string {
	return fmt.Sprintf("latest:pcr:%s:%s", product, expiry)
}

func ohlcKey(product string, windowMinutes int) string {
	return fmt.Sprintf("ohlc:%s:%dm", product, windowMinutes)
}

func ivSurfaceKey(product string) string {
	return fmt.Sprintf("iv_surface:%s", product)
}

func processedUnderlyingKey(product string, tickID int64) string {
	return fmt.Sprintf("processed:underlying:%s:%d", product, tickID)
}

func processedChainKey(product, expiry, generatedAt string) string {
	return fmt.Sprintf("processed:chain:%s:%s:%s", product, expiry, generatedAt)
}

func processedQuoteKey(symbol, generatedAt string) string {
	return fmt.Sprintf("processed:quote:%s:%s", symbol, generatedAt)
}

const (
	channelEnrichedUnderlying = "enriched:underlying"
	channelEnrichedChain      = "enriched:option_chain"
)
