package api

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cabinet.report/internal/camera"
	"github.com/banshee-data/cabinet.report/internal/db"
)

// fakeFrames is a scriptable FrameControl for handler tests.
type fakeFrames struct {
	mu             sync.Mutex
	online         map[string]bool
	applyDetection bool
	detectionSet   map[string]bool
	refreshed      []string
}

func newFakeFrames() *fakeFrames {
	return &fakeFrames{
		online:       make(map[string]bool),
		detectionSet: make(map[string]bool),
	}
}

func (f *fakeFrames) OnlineDevices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, on := range f.online {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeFrames) IsOnline(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[deviceID]
}

func (f *fakeFrames) SetDetection(deviceID string, enabled bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detectionSet[deviceID] = enabled
	return f.applyDetection
}

func (f *fakeFrames) RefreshBoundary(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, deviceID)
	return f.online[deviceID]
}

func (f *fakeFrames) refreshedDevices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshed...)
}

type apiFixture struct {
	server *Server
	db     *db.DB
	frames *fakeFrames
	hub    *EventHub
	mux    *http.ServeMux
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.MigrateUp())

	frames := newFakeFrames()
	hub := NewEventHub()
	server := NewServer(database, frames, hub)
	return &apiFixture{
		server: server,
		db:     database,
		frames: frames,
		hub:    hub,
		mux:    server.ServeMux(),
	}
}

// registerDevice seeds a device row via the same path the frame server
// uses on first contact.
func (f *apiFixture) registerDevice(t *testing.T, deviceID string) {
	t.Helper()
	require.NoError(t, f.db.SetDeviceOnline(context.Background(), deviceID, true))
}

// saveEvent stores one detection event with fixed track and confidence.
func (f *apiFixture) saveEvent(t *testing.T, id, deviceID, label, direction string, ts time.Time, snapshot []byte) {
	t.Helper()
	err := f.db.SaveEvent(context.Background(), &camera.DetectionEvent{
		ID:         id,
		DeviceID:   deviceID,
		TrackID:    1,
		Label:      label,
		Confidence: 0.8,
		Direction:  camera.Direction(direction),
		Snapshot:   snapshot,
		Timestamp:  ts,
	})
	require.NoError(t, err)
}
