package backtest

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/mr"
)

// BatchOutcome pairs one symbol's isolated run with its result.
type BatchOutcome struct {
	Symbol string
	Result *Result
}

// RunBatch executes one isolated single-symbol run per entry, concurrently.
// Runs share no mutable state, so they fan out across workers; the first
// failure cancels the remaining symbols and is returned to the caller.
func RunBatch(ctx context.Context, seriesBySymbol map[string]*Series, ordersBySymbol map[string][]Order, cfg *Config) (map[string]*Result, error) {
	if len(seriesBySymbol) == 0 {
		return nil, fmt.Errorf("%w: no symbols", ErrInvalidSeries)
	}

	workers := len(seriesBySymbol)
	if workers > 16 {
		workers = 16
	}

	return mr.MapReduce(
		func(source chan<- string) {
			for sym := range seriesBySymbol {
				source <- sym
			}
		},
		func(sym string, writer mr.Writer[BatchOutcome], cancel func(error)) {
			res, err := Run(seriesBySymbol[sym], ordersBySymbol[sym], cfg)
			if err != nil {
				cancel(fmt.Errorf("backtest: run %s: %w", sym, err))
				return
			}
			writer.Write(BatchOutcome{Symbol: sym, Result: res})
		},
		func(pipe <-chan BatchOutcome, writer mr.Writer[map[string]*Result], cancel func(error)) {
			out := make(map[string]*Result, len(seriesBySymbol))
			for item := range pipe {
				out[item.Symbol] = item.Result
			}
			writer.Write(out)
		},
		mr.WithContext(ctx),
		mr.WithWorkers(workers),
	)
}
