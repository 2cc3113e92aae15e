package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-ops/meridian-ops/internal/observability"
)

const (
	// TaskQuoteExpiry sweeps live quotes past their expiration date.
	TaskQuoteExpiry = "quotes:expire_stale"
)

// QuoteExpiryPayload carries scheduling metadata.
type QuoteExpiryPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// QuoteExpirer is implemented by the negotiation service.
type QuoteExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// NewQuoteExpiryTask constructs an Asynq task for the expiry sweep.
func NewQuoteExpiryTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(QuoteExpiryPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteExpiry, body, asynq.Queue(QueueDefault)), nil
}

// NewQuoteExpiryHandler processes TaskQuoteExpiry tasks.
func NewQuoteExpiryHandler(expirer QuoteExpirer, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload QuoteExpiryPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		start := time.Now()
		count, err := expirer.ExpireStale(ctx)
		metrics.TrackJob("quote_expiry", start, err)
		if err != nil {
			logger.Error("quote expiry sweep", slog.Any("error", err))
			return err
		}
		if count > 0 {
			logger.Info("quote expiry sweep", slog.Int("expired", count))
		}
		return nil
	}
}
