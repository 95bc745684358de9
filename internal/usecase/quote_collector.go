package usecase

import (
	"context"
	"time"

	"Tehama/internal/domain/models"
	domrepo "Tehama/internal/domain/repository"
	"Tehama/internal/service/marketdata"
	"Tehama/pkg/logger"
)

// BookUpdater is the downstream end of the quote pipeline: it folds
// validated quote updates into the price book the snapshot provider reads.
type BookUpdater struct {
	book    *marketdata.PriceBook
	metrics domrepo.Metrics
}

func NewBookUpdater(book *marketdata.PriceBook, metrics domrepo.Metrics) *BookUpdater {
	return &BookUpdater{book: book, metrics: metrics}
}

func (u *BookUpdater) Process(_ context.Context, q *models.Quote) error {
	u.book.Update(q)
	u.metrics.RecordLastPrice(q.Symbol, q.Price)
	return nil
}

// QuoteProc is the pipeline-facing processor contract.
type QuoteProc interface {
	Process(ctx context.Context, q *models.Quote) error
}

// QuoteCollector owns the WebSocket lifecycle: connect, subscribe, read,
// and reconnect until the context is cancelled. Every streamed quote
// goes through the pipeline processor.
type QuoteCollector struct {
	stream domrepo.QuoteStream
	proc   QuoteProc
	log    *logger.Logger
}

func NewQuoteCollector(stream domrepo.QuoteStream, proc QuoteProc, lgr *logger.Logger) *QuoteCollector {
	return &QuoteCollector{stream: stream, proc: proc, log: lgr}
}

// Run blocks until ctx is cancelled. Read failures trigger reconnects
// with the stream's own delay; the collector never gives up on its own.
func (c *QuoteCollector) Run(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	defer c.stream.Close()

	for {
		quotes, errs := c.stream.Read(ctx)
	drain:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case q, ok := <-quotes:
				if !ok {
					break drain
				}
				if err := c.proc.Process(ctx, q); err != nil && c.log != nil {
					c.log.Debug("quote dropped", logger.String("symbol", q.Symbol), logger.Error(err))
				}
			case err, ok := <-errs:
				if ok && err != nil && c.log != nil {
					c.log.Warn("quote stream error", logger.Error(err))
				}
				break drain
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.log != nil {
				c.log.Error("quote stream reconnect failed", logger.Error(err))
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
