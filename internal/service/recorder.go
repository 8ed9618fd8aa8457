package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/firecast/internal/model"
	"github.com/sells-group/firecast/internal/resilience"
)

// breakerRecorder skips audit writes while the store keeps failing.
type breakerRecorder struct {
	next    Recorder
	breaker *resilience.Breaker
}

// GuardRecorder wraps r with a circuit breaker. Writes rejected by an open
// breaker return resilience.ErrOpen without touching the store.
func GuardRecorder(r Recorder, cfg resilience.Config) Recorder {
	if r == nil {
		return nil
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to resilience.State) {
			zap.L().Warn("audit store breaker state change",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &breakerRecorder{next: r, breaker: resilience.New(cfg)}
}

func (g *breakerRecorder) RecordPrediction(ctx context.Context, entry model.PredictionLog) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.next.RecordPrediction(ctx, entry)
	})
}
