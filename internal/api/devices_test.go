package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cabinet.report/internal/testutil"
)

func TestListDevices(t *testing.T) {
	t.Parallel()
	fixture := newAPIFixture(t)
	fixture.registerDevice(t, "cab-1")
	fixture.registerDevice(t, "cab-2")
	fixture.frames.online["cab-1"] = true

	rec := testutil.Do(t, fixture.mux, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []struct {
		DeviceID  string `json:"device_id"`
		Connected bool   `json:"connected"`
	}
	testutil.DecodeJSON(t, rec, &views)
	require.Len(t, views, 2)
	assert.Equal(t, "cab-1", views[0].DeviceID)
	assert.True(t, views[0].Connected)
	assert.Equal(t, "cab-2", views[1].DeviceID)
	assert.False(t, views[1].Connected)
}

func TestListDevicesMethodNotAllowed(t *testing.T) {
	t.Parallel()
	fixture := newAPIFixture(t)

	rec := testutil.Do(t, fixture.mux, http.MethodDelete, "/api/devices", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShowDevice(t *testing.T) {
	t.Parallel()
	fixture := newAPIFixture(t)
	fixture.registerDevice(t, "cab-1")

	t.Run("found", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodGet, "/api/devices/cab-1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var view struct {
			DeviceID  string `json:"device_id"`
			Connected bool   `json:"connected"`
		}
		testutil.DecodeJSON(t, rec, &view)
		assert.Equal(t, "cab-1", view.DeviceID)
		assert.False(t, view.Connected)
	})

	t.Run("not found", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodGet, "/api/devices/ghost", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodGet, "/api/devices/cab-1/reboot", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRenameDevice(t *testing.T) {
	t.Parallel()
	fixture := newAPIFixture(t)
	fixture.registerDevice(t, "cab-1")

	rec := testutil.Do(t, fixture.mux, http.MethodPatch, "/api/devices/cab-1", `{"name":"fridge left"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = testutil.Do(t, fixture.mux, http.MethodGet, "/api/devices/cab-1", "")
	var view struct {
		Name string `json:"name"`
	}
	testutil.DecodeJSON(t, rec, &view)
	assert.Equal(t, "fridge left", view.Name)

	t.Run("bad body", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodPatch, "/api/devices/cab-1", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown device", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodPatch, "/api/devices/ghost", `{"name":"x"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeviceBoundary(t *testing.T) {
	t.Parallel()
	fixture := newAPIFixture(t)
	fixture.registerDevice(t, "cab-1")
	fixture.frames.online["cab-1"] = true

	t.Run("put stores line and signals session", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodPut, "/api/devices/cab-1/boundary",
			`{"boundary":{"x1":0,"y1":0.5,"x2":1,"y2":0.5},"direction_a_to_b":"out"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"cab-1"}, fixture.frames.refreshedDevices())
	})

	t.Run("get reflects stored line", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodGet, "/api/devices/cab-1/boundary", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var got boundaryRequest
		testutil.DecodeJSON(t, rec, &got)
		assert.Equal(t, 0.5, got.Boundary.Y1)
		assert.Equal(t, 1.0, got.Boundary.X2)
		assert.Equal(t, "out", got.DirectionAToB)
	})

	t.Run("degenerate line rejected", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodPut, "/api/devices/cab-1/boundary",
			`{"boundary":{"x1":0.5,"y1":0.5,"x2":0.5,"y2":0.5},"direction_a_to_b":"in"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("out of range coordinates rejected", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodPut, "/api/devices/cab-1/boundary",
			`{"boundary":{"x1":-0.1,"y1":0,"x2":1,"y2":1},"direction_a_to_b":"in"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad direction rejected", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodPut, "/api/devices/cab-1/boundary",
			`{"boundary":{"x1":0,"y1":0.5,"x2":1,"y2":0.5},"direction_a_to_b":"sideways"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown device", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodPut, "/api/devices/ghost/boundary",
			`{"boundary":{"x1":0,"y1":0.5,"x2":1,"y2":0.5},"direction_a_to_b":"in"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeviceDetection(t *testing.T) {
	t.Parallel()
	fixture := newAPIFixture(t)
	fixture.registerDevice(t, "cab-1")
	fixture.frames.applyDetection = true

	rec := testutil.Do(t, fixture.mux, http.MethodPost, "/api/devices/cab-1/detection", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string `json:"status"`
		Applied bool   `json:"applied"`
	}
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Applied)
	assert.True(t, fixture.frames.detectionSet["cab-1"])

	t.Run("offline device persists but does not apply", func(t *testing.T) {
		fixture.registerDevice(t, "cab-2")
		fixture.frames.applyDetection = false

		rec := testutil.Do(t, fixture.mux, http.MethodPost, "/api/devices/cab-2/detection", `{"enabled":true}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Applied bool `json:"applied"`
		}
		testutil.DecodeJSON(t, rec, &resp)
		assert.False(t, resp.Applied)
	})

	t.Run("unknown device", func(t *testing.T) {
		rec := testutil.Do(t, fixture.mux, http.MethodPost, "/api/devices/ghost/detection", `{"enabled":true}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
