package services

import (
	"context"
	"testing"

	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakdownFromSignals(t *testing.T) {
	signals := []models.Signal{
		{ID: "1", SenderID: "a", RecipientID: "b", Type: "praise"},
		{ID: "1", SenderID: "a", RecipientID: "b", Type: "praise"},
		{ID: "2", SenderID: "b", RecipientID: "a", Type: "praise"},
		{ID: "3", SenderID: "a", RecipientID: "c", Type: "gift"},
		{ID: "4", SenderID: "a", RecipientID: "b", Type: "retired-category"},
		{ID: "5", SenderID: "b", RecipientID: "c", Type: "gift"},
	}

	got := BreakdownFromSignals("a", signals, []string{"praise", "help", "gift"})
	assert.Equal(t, []models.CategoryCount{
		{Category: "praise", Sent: 1, Received: 1},
		{Category: "help"},
		{Category: "gift", Sent: 1},
	}, got)
}

func TestComputeReportBreakdown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, LedgerConfig{Categories: []string{"praise", "listening"}})
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	for _, s := range []struct{ from, to, kind string }{
		{alice, bob, "praise"},
		{alice, bob, "praise"},
		{bob, alice, "listening"},
	} {
		_, err := f.ledger.SendSignal(ctx, s.from, ByIdentity(s.to), "hi", s.kind)
		require.NoError(t, err)
	}

	rows, err := f.ledger.ComputeReportBreakdown(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []models.CategoryCount{
		{Category: "praise", Sent: 2},
		{Category: "listening", Received: 1},
	}, rows)
}
