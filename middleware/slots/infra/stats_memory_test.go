package infra

import (
	"context"
	"testing"

	"slot-gateway/middleware/slots/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_Record(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackSlots(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: domain.EventAcquired, Slot: 3, Method: "GET", Path: "/a"}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: domain.EventAcquired, Slot: 3, Method: "GET", Path: "/a"}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: domain.EventReleased, Slot: 3}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Kind: domain.EventDrained, Leaked: 2}))

	assert.Equal(t, int64(2), s.Count(domain.EventAcquired))
	assert.Equal(t, int64(1), s.Count(domain.EventReleased))
	assert.Equal(t, 2, s.LastLeaked())
	assert.Equal(t, map[string]int64{"GET /a": 2}, s.ByRoute())
	assert.Equal(t, map[domain.ID]int64{3: 2}, s.BySlot())
}

func TestMemoryStatsStore_SlotTrackingOff(t *testing.T) {
	s := NewMemoryStatsStore()
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Kind: domain.EventAcquired, Slot: 1}))
	assert.Empty(t, s.BySlot())
	assert.Empty(t, s.ByRoute())
}
