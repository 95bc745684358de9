package marketdata

import (
	"sync"
	"time"

	"Tehama/internal/domain/models"
)

// staleAfter bounds how old a streamed price may be before the snapshot
// provider prefers a fresh REST fetch.
const staleAfter = 5 * time.Minute

// PriceBook holds the latest streamed quote per symbol. The quote
// pipeline writes, the snapshot provider reads.
type PriceBook struct {
	mu sync.RWMutex
	m  map[string]*models.Quote
}

func NewPriceBook() *PriceBook {
	return &PriceBook{m: make(map[string]*models.Quote)}
}

// Update merges a streamed quote in. Streamed trades carry no previous
// close, so an existing PrevClose is preserved.
func (b *PriceBook) Update(q *models.Quote) {
	if q == nil || q.Symbol == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.m[q.Symbol]; ok && q.PrevClose == 0 {
		q.PrevClose = prev.PrevClose
	}
	b.m[q.Symbol] = q
}

// Latest returns the freshest quote for the symbol, or nil when absent
// or stale.
func (b *PriceBook) Latest(symbol string) *models.Quote {
	b.mu.RLock()
	q, ok := b.m[symbol]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	if time.Since(time.Unix(q.Timestamp, 0)) > staleAfter {
		return nil
	}
	return q
}

// Symbols lists every symbol with a stored quote.
func (b *PriceBook) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.m))
	for s := range b.m {
		out = append(out, s)
	}
	return out
}
