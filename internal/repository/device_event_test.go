package repository

import (
	"context"
	"testing"
	"time"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceEventCreateAndFind(t *testing.T) {
	db := SetupTestDB()
	repo := NewDeviceEventRepository(db)
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, repo.Create(ctx, &models.DeviceEvent{
			DeviceType: "gate",
			DeviceID:   "gate-entry",
			EventType:  "gate_opened",
			Sequence:   seq,
			Timestamp:  time.Now().UnixMilli(),
		}))
	}

	events, err := repo.FindByDevice(ctx, "gate-entry", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// newest first
	assert.EqualValues(t, 3, events[0].Sequence)

	events, err = repo.FindByDevice(ctx, "gate-exit", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeviceEventPrune(t *testing.T) {
	db := SetupTestDB()
	repo := NewDeviceEventRepository(db)
	ctx := context.Background()

	old := &models.DeviceEvent{
		DeviceType: "camera",
		DeviceID:   "cam-entry",
		EventType:  "error",
		Timestamp:  time.Now().UnixMilli(),
	}
	require.NoError(t, repo.Create(ctx, old))
	db.Model(old).Update("created_at", time.Now().Add(-48*time.Hour))

	fresh := &models.DeviceEvent{
		DeviceType: "camera",
		DeviceID:   "cam-entry",
		EventType:  "ready",
		Timestamp:  time.Now().UnixMilli(),
	}
	require.NoError(t, repo.Create(ctx, fresh))

	pruned, err := repo.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	remaining, err := repo.FindByDevice(ctx, "cam-entry", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "ready", remaining[0].EventType)
}

func TestGateOperationAudit(t *testing.T) {
	db := SetupTestDB()
	repo := NewGateOperationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.GateOperation{
		Lane:       "entry",
		Operation:  "open",
		OperatedBy: "OP-001",
		Barcode:    "T-0001",
		Success:    true,
	}))
	require.NoError(t, repo.Create(ctx, &models.GateOperation{
		Lane:      "entry",
		Operation: "close",
		Success:   true,
	}))

	ops, err := repo.FindByLane(ctx, "entry", 10)
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	ops, err = repo.FindByLane(ctx, "exit", 10)
	require.NoError(t, err)
	assert.Empty(t, ops)
}
