package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/clock"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/smallbiznis/seatly/internal/payment/repository"
	"github.com/smallbiznis/seatly/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLedger(t *testing.T) *Service {
	t.Helper()
	db := dbtest.Open(t, &paymentdomain.WebhookEvent{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func event(id string, payload string) *paymentdomain.Event {
	return &paymentdomain.Event{ID: id, Type: "invoice.payment_succeeded", Payload: []byte(payload)}
}

func TestRecordEventSuppressesProcessedDuplicates(t *testing.T) {
	ledger := newLedger(t)
	ctx := context.Background()

	first, err := ledger.RecordEvent(ctx, "Stripe", event("evt_1", `{"n":1}`))
	require.NoError(t, err)
	require.Equal(t, "stripe", first.Source)
	require.Nil(t, first.ProcessedAt)

	retry, err := ledger.RecordEvent(ctx, "stripe", event("evt_1", `{"n":2}`))
	require.NoError(t, err)
	require.Equal(t, first.ID, retry.ID, "an unprocessed event is handed back for another attempt")
	require.JSONEq(t, `{"n":2}`, string(retry.Payload))

	require.NoError(t, ledger.MarkProcessed(ctx, first.ID))

	_, err = ledger.RecordEvent(ctx, "stripe", event("evt_1", `{"n":3}`))
	require.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)

	stored, err := ledger.repo.FindEvent(ctx, ledger.db, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)
	require.JSONEq(t, `{"n":2}`, string(stored.Payload), "processed payloads are frozen")
}

func TestRecordEventValidates(t *testing.T) {
	ledger := newLedger(t)
	ctx := context.Background()

	_, err := ledger.RecordEvent(ctx, "stripe", nil)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = ledger.RecordEvent(ctx, "stripe", &paymentdomain.Event{ID: " ", Type: "x", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = ledger.RecordEvent(ctx, "stripe", event("evt_2", `{not json`))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
