package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cabinet.report/internal/camera"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.MigrateUp())
	return database
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	t.Parallel()
	database := testDB(t)

	// A second run on a current schema is a no-op, not an error.
	require.NoError(t, database.MigrateUp())

	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
}

func TestMigrateDown(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	require.NoError(t, database.MigrateDown())

	// Steps(-1) rolls back only the most recent migration.
	_, err := database.Exec(`SELECT COUNT(*) FROM detection_events`)
	assert.Error(t, err, "detection_events table is gone after down migration")
	_, err = database.Exec(`SELECT COUNT(*) FROM devices`)
	assert.NoError(t, err, "earlier migrations stay applied")
}

func TestSetDeviceOnlineCreatesRow(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	ctx := context.Background()

	require.NoError(t, database.SetDeviceOnline(ctx, "cab-1", true))

	device, err := database.GetDevice(ctx, "cab-1")
	require.NoError(t, err)
	assert.Equal(t, "cab-1", device.DeviceID)
	assert.True(t, device.Online)
	assert.False(t, device.DetectionEnabled)
	assert.Nil(t, device.Boundary)
	require.NotNil(t, device.LastSeen)

	require.NoError(t, database.SetDeviceOnline(ctx, "cab-1", false))
	device, err = database.GetDevice(ctx, "cab-1")
	require.NoError(t, err)
	assert.False(t, device.Online)
}

func TestGetDeviceNotFound(t *testing.T) {
	t.Parallel()
	database := testDB(t)

	_, err := database.GetDevice(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestListDevicesSorted(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	ctx := context.Background()

	for _, id := range []string{"cab-2", "cab-1", "cab-3"} {
		require.NoError(t, database.SetDeviceOnline(ctx, id, true))
	}

	devices, err := database.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "cab-1", devices[0].DeviceID)
	assert.Equal(t, "cab-2", devices[1].DeviceID)
	assert.Equal(t, "cab-3", devices[2].DeviceID)
}

func TestSetDeviceName(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	ctx := context.Background()

	require.NoError(t, database.SetDeviceOnline(ctx, "cab-1", true))
	require.NoError(t, database.SetDeviceName(ctx, "cab-1", "fridge left"))

	device, err := database.GetDevice(ctx, "cab-1")
	require.NoError(t, err)
	assert.Equal(t, "fridge left", device.Name)

	assert.ErrorIs(t, database.SetDeviceName(ctx, "ghost", "x"), ErrDeviceNotFound)
}

func TestSetBoundary(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	ctx := context.Background()

	require.NoError(t, database.SetDeviceOnline(ctx, "cab-1", true))
	line := camera.BoundaryLine{X1: 0, Y1: 0.5, X2: 1, Y2: 0.5}
	require.NoError(t, database.SetBoundary(ctx, "cab-1", line, camera.DirectionOut))

	device, err := database.GetDevice(ctx, "cab-1")
	require.NoError(t, err)
	require.NotNil(t, device.Boundary)
	assert.Equal(t, line, *device.Boundary)
	assert.Equal(t, "out", device.DirectionAToB)

	assert.ErrorIs(t, database.SetBoundary(ctx, "ghost", line, camera.DirectionIn), ErrDeviceNotFound)
}

func TestSetDetectionEnabled(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	ctx := context.Background()

	require.NoError(t, database.SetDeviceOnline(ctx, "cab-1", true))
	require.NoError(t, database.SetDetectionEnabled(ctx, "cab-1", true))

	device, err := database.GetDevice(ctx, "cab-1")
	require.NoError(t, err)
	assert.True(t, device.DetectionEnabled)

	assert.ErrorIs(t, database.SetDetectionEnabled(ctx, "ghost", true), ErrDeviceNotFound)
}

func TestDeviceSettings(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	ctx := context.Background()

	t.Run("unknown device gets defaults", func(t *testing.T) {
		settings, err := database.DeviceSettings(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, settings.Boundary)
		assert.Equal(t, camera.DirectionIn, settings.AToB)
		assert.False(t, settings.DetectionEnabled)
	})

	t.Run("configured device", func(t *testing.T) {
		require.NoError(t, database.SetDeviceOnline(ctx, "cab-1", true))
		line := camera.BoundaryLine{X1: 0.2, Y1: 0, X2: 0.2, Y2: 1}
		require.NoError(t, database.SetBoundary(ctx, "cab-1", line, camera.DirectionOut))
		require.NoError(t, database.SetDetectionEnabled(ctx, "cab-1", true))

		settings, err := database.DeviceSettings(ctx, "cab-1")
		require.NoError(t, err)
		require.NotNil(t, settings.Boundary)
		assert.Equal(t, line, *settings.Boundary)
		assert.Equal(t, camera.DirectionOut, settings.AToB)
		assert.True(t, settings.DetectionEnabled)
	})
}

func saveTestEvent(t *testing.T, database *DB, id, deviceID, label, direction string, ts time.Time, snapshot []byte) {
	t.Helper()
	err := database.SaveEvent(context.Background(), &camera.DetectionEvent{
		ID:         id,
		DeviceID:   deviceID,
		TrackID:    7,
		Label:      label,
		Brand:      "coca cola",
		Confidence: 0.91,
		Direction:  camera.Direction(direction),
		Snapshot:   snapshot,
		Timestamp:  ts,
	})
	require.NoError(t, err)
}

func TestSaveAndListEvents(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xD9}

	saveTestEvent(t, database, "evt-1", "cab-1", "coca_cola_can", "in", base, jpeg)
	saveTestEvent(t, database, "evt-2", "cab-1", "pepsi_bottle", "out", base.Add(time.Minute), nil)
	saveTestEvent(t, database, "evt-3", "cab-2", "coca_cola_can", "in", base.Add(2*time.Minute), jpeg)

	t.Run("newest first, no filter", func(t *testing.T) {
		events, err := database.ListEvents(context.Background(), EventFilter{})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "evt-3", events[0].EventID)
		assert.Equal(t, "evt-1", events[2].EventID)
	})

	t.Run("listing flags snapshots without carrying blobs", func(t *testing.T) {
		events, err := database.ListEvents(context.Background(), EventFilter{DeviceID: "cab-1"})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.False(t, events[0].HasSnapshot) // evt-2
		assert.True(t, events[1].HasSnapshot)  // evt-1
	})

	t.Run("filter by device and label", func(t *testing.T) {
		events, err := database.ListEvents(context.Background(), EventFilter{DeviceID: "cab-1", Label: "coca_cola_can"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "evt-1", events[0].EventID)
		assert.Equal(t, int64(7), events[0].TrackID)
		assert.Equal(t, "coca cola", events[0].Brand)
		assert.InDelta(t, 0.91, events[0].Confidence, 1e-9)
	})

	t.Run("filter by direction", func(t *testing.T) {
		events, err := database.ListEvents(context.Background(), EventFilter{Direction: "out"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "evt-2", events[0].EventID)
	})

	t.Run("time window is half open", func(t *testing.T) {
		events, err := database.ListEvents(context.Background(), EventFilter{
			Since: base.Add(time.Minute),
			Until: base.Add(2 * time.Minute),
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "evt-2", events[0].EventID)
	})

	t.Run("limit", func(t *testing.T) {
		events, err := database.ListEvents(context.Background(), EventFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})
}

func TestSaveEventStoresEpochSeconds(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	saveTestEvent(t, database, "evt-1", "cab-1", "bottle", "in", ts, nil)

	// The column must hold an integer epoch that SQLite date functions
	// can bucket; a driver-formatted text timestamp makes date() NULL.
	var stored int64
	var day string
	err := database.QueryRow(
		`SELECT event_unix, date(event_unix, 'unixepoch') FROM detection_events WHERE event_id = 'evt-1'`).
		Scan(&stored, &day)
	require.NoError(t, err)
	assert.Equal(t, ts.Unix(), stored)
	assert.Equal(t, "2026-03-01", day)

	events, err := database.ListEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(ts), "round-trip keeps second precision")
}

func TestEventSnapshot(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xD9}

	saveTestEvent(t, database, "evt-1", "cab-1", "bottle", "in", base, jpeg)
	saveTestEvent(t, database, "evt-2", "cab-1", "bottle", "in", base, nil)

	snapshot, err := database.EventSnapshot(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, jpeg, snapshot)

	_, err = database.EventSnapshot(context.Background(), "evt-2")
	assert.ErrorIs(t, err, ErrEventNotFound, "event without snapshot bytes")

	_, err = database.EventSnapshot(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestEventCountsByDay(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	day1 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)

	saveTestEvent(t, database, "evt-1", "cab-1", "bottle", "in", day1, nil)
	saveTestEvent(t, database, "evt-2", "cab-1", "bottle", "in", day1.Add(time.Hour), nil)
	saveTestEvent(t, database, "evt-3", "cab-1", "bottle", "out", day1, nil)
	saveTestEvent(t, database, "evt-4", "cab-2", "bottle", "in", day2, nil)

	counts, err := database.EventCountsByDay(context.Background(), "", day1.Add(-time.Hour))
	require.NoError(t, err)
	want := []DailyCount{
		{Day: "2026-08-01", Direction: "in", Count: 2},
		{Day: "2026-08-01", Direction: "out", Count: 1},
		{Day: "2026-08-02", Direction: "in", Count: 1},
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("daily counts mismatch (-want +got):\n%s", diff)
	}

	counts, err = database.EventCountsByDay(context.Background(), "cab-2", day1.Add(-time.Hour))
	require.NoError(t, err)
	if diff := cmp.Diff([]DailyCount{{Day: "2026-08-02", Direction: "in", Count: 1}}, counts); diff != "" {
		t.Errorf("device-scoped counts mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneEvents(t *testing.T) {
	t.Parallel()
	database := testDB(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	saveTestEvent(t, database, "evt-old", "cab-1", "bottle", "in", base.Add(-48*time.Hour), nil)
	saveTestEvent(t, database, "evt-new", "cab-1", "bottle", "in", base, nil)

	pruned, err := database.PruneEvents(context.Background(), base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	events, err := database.ListEvents(context.Background(), EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-new", events[0].EventID)
}
