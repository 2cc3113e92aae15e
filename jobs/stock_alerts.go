package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/observability"
)

const (
	// TaskStockAlerts mails the low stock report to the ops distribution list.
	TaskStockAlerts = "inventory:low_stock_alert"
)

// StockAlertPayload carries scheduling metadata.
type StockAlertPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// StockReporter is implemented by the catalog service.
type StockReporter interface {
	LowStockReport(ctx context.Context) ([]catalog.StockReportRow, error)
}

// NewStockAlertTask constructs an Asynq task for the low stock alert.
func NewStockAlertTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockAlertPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAlerts, body, asynq.Queue(QueueDefault)), nil
}

// NewStockAlertHandler processes TaskStockAlerts tasks. Nothing is sent when
// no item is at or below its threshold.
func NewStockAlertHandler(reporter StockReporter, mailer Mailer, recipients []string, metrics *observability.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockAlertPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		start := time.Now()
		rows, err := reporter.LowStockReport(ctx)
		metrics.TrackJob("stock_alerts", start, err)
		if err != nil {
			logger.Error("low stock report", slog.Any("error", err))
			return err
		}
		if len(rows) == 0 || len(recipients) == 0 {
			return nil
		}
		body := formatStockAlert(rows)
		subject := fmt.Sprintf("Low stock alert: %d item(s)", len(rows))
		for _, to := range recipients {
			if err := mailer.Send(ctx, to, subject, body); err != nil {
				logger.Error("send stock alert", slog.String("to", to), slog.Any("error", err))
				return err
			}
		}
		return nil
	}
}

func formatStockAlert(rows []catalog.StockReportRow) string {
	var b strings.Builder
	b.WriteString("The following items are at or below their low stock threshold:\n\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "- %s (%s): %d on hand, threshold %d\n", row.Name, row.SKU, row.Quantity, row.LowStockThreshold)
	}
	return b.String()
}
