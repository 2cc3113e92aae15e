package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/observability"
)

type fakeExpirer struct {
	count int
	err   error
	calls int
}

func (f *fakeExpirer) ExpireStale(ctx context.Context) (int, error) {
	f.calls++
	return f.count, f.err
}

type fakeReporter struct {
	rows []catalog.StockReportRow
}

func (f *fakeReporter) LowStockReport(ctx context.Context) ([]catalog.StockReportRow, error) {
	return f.rows, nil
}

type fakeMailer struct {
	sent []SendEmailPayload
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, SendEmailPayload{To: to, Subject: subject, Body: body})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestQuoteExpiryHandlerRunsSweep(t *testing.T) {
	expirer := &fakeExpirer{count: 3}
	handler := NewQuoteExpiryHandler(expirer, observability.NewMetrics(), testLogger())

	task, err := NewQuoteExpiryTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 1, expirer.calls)
}

func TestQuoteExpiryHandlerPropagatesError(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("db down")}
	handler := NewQuoteExpiryHandler(expirer, observability.NewMetrics(), testLogger())

	task, err := NewQuoteExpiryTask(time.Now())
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))
}

func TestQuoteExpiryHandlerSkipsBadPayload(t *testing.T) {
	handler := NewQuoteExpiryHandler(&fakeExpirer{}, observability.NewMetrics(), testLogger())

	err := handler(context.Background(), asynq.NewTask(TaskQuoteExpiry, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestStockAlertHandlerMailsRecipients(t *testing.T) {
	reporter := &fakeReporter{rows: []catalog.StockReportRow{
		{Name: "Widget", SKU: "WID-1", Quantity: 2, LowStockThreshold: 10},
		{Name: "Gadget", SKU: "GAD-1", Quantity: 0, LowStockThreshold: 5},
	}}
	mailer := &fakeMailer{}
	handler := NewStockAlertHandler(reporter, mailer, []string{"ops@example.com", "buyer@example.com"}, observability.NewMetrics(), testLogger())

	task, err := NewStockAlertTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, mailer.sent, 2)
	require.Equal(t, "Low stock alert: 2 item(s)", mailer.sent[0].Subject)
	require.Contains(t, mailer.sent[0].Body, "Widget (WID-1): 2 on hand, threshold 10")
	require.Contains(t, mailer.sent[0].Body, "Gadget (GAD-1): 0 on hand, threshold 5")
}

func TestStockAlertHandlerSkipsWhenHealthy(t *testing.T) {
	mailer := &fakeMailer{}
	handler := NewStockAlertHandler(&fakeReporter{}, mailer, []string{"ops@example.com"}, observability.NewMetrics(), testLogger())

	task, err := NewStockAlertTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Empty(t, mailer.sent)
}

func TestSendEmailHandlerDelegatesToMailer(t *testing.T) {
	mailer := &fakeMailer{}
	handler := NewSendEmailHandler(mailer)

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.com", Subject: "hi", Body: "hello"})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "a@b.com", mailer.sent[0].To)
}
