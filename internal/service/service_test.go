package service_test

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliw/LSAssetDataService/internal/service"
)

// ─────────────────────────────────────────────────────────────
// Emitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, service.EventDatafileStaged, service.StagedFile{Job: "par"})
	m.Emit(ctx, "other", nil)

	events := m.Recorded()
	require.Len(t, events, 2)
	assert.Equal(t, service.EventDatafileStaged, events[0].Event)
	assert.Equal(t, "par", events[0].Data.(service.StagedFile).Job)
	assert.Nil(t, events[1].Data)
}

func TestLogEmitter_LogsStagedFile(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := &service.LogEmitter{Log: log.NewEntry(logger)}

	e.Emit(context.Background(), service.EventDatafileStaged, service.StagedFile{
		Job:       "workflow",
		File:      "AssetDataFile_2024_03_15_09_30.csv",
		Rows:      12,
		Watermark: time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
	})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.InfoLevel, entry.Level)
	assert.Equal(t, 5000, entry.Data["event_id"])
	assert.Equal(t, service.EventDatafileStaged, entry.Data["emit"])
	assert.Equal(t, "AssetDataFile_2024_03_15_09_30.csv", entry.Data["file"])
	assert.Equal(t, 12, entry.Data["rows"])
	assert.Equal(t, "2024-03-15 09:30:00.000", entry.Data["watermark"])
}
