package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

func TestYieldReportStore_InsertBulkAndRecent(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := NewYieldReportStore(conn)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reports := []*domain.YieldReport{
		{ReportID: "r1", TickID: "t1", Protocol: "Marinade", Name: "mSOL", Type: "staking", APY: 7, TVL: 1e9, Risk: "low", Chain: "solana", ReportedAt: now},
		{ReportID: "r2", TickID: "t1", Protocol: "Kamino", Name: "USDC", Type: "lending", APY: 9, TVL: 2e8, Risk: "medium", Chain: "solana", ReportedAt: now.Add(time.Second)},
		{ReportID: "r3", TickID: "t2", Protocol: "Kamino", Name: "USDC", Type: "lending", APY: 11, TVL: 2e8, Risk: "medium", Chain: "solana", ReportedAt: now.Add(time.Minute)},
	}
	require.NoError(t, store.InsertBulk(ctx, reports))

	got, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r3", got[0].ReportID)
	assert.Equal(t, "r2", got[1].ReportID)

	avg, err := store.APYByProtocol(ctx, now)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, avg["Kamino"], 1e-9)
	assert.InDelta(t, 7.0, avg["Marinade"], 1e-9)
}

func TestYieldReportStore_Duplicate(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := NewYieldReportStore(conn)

	r := &domain.YieldReport{ReportID: "dup", TickID: "t", Protocol: "Marinade", ReportedAt: time.Now()}
	require.NoError(t, store.InsertBulk(ctx, []*domain.YieldReport{r}))

	err := store.InsertBulk(ctx, []*domain.YieldReport{r})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.YieldReport{
		{ReportID: "x", Protocol: "A"},
		{ReportID: "x", Protocol: "A"},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
