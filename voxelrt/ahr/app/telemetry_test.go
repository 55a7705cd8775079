package app

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gekko3d/ahr"
	"github.com/gekko3d/ahr/voxelrt/ahr/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() ahr.Report {
	return ahr.Report{
		Frame:  7,
		States: []ahr.State{ahr.StateIdle, ahr.StateGridResolved, ahr.StateIdle},
		Grid: core.GridSettings{
			VoxelSize: 0.25,
			SliceSize: [3]int{16, 16, 18},
		},
		PaletteEntries: 2,
		Timings: []ahr.StageTiming{
			{Stage: "Trace", Duration: 1500 * time.Microsecond},
		},
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewFrameReport(t *testing.T) {
	rep := sampleReport()
	rep.Skipped = ahr.SkipViewTooSmall
	rep.Err = errors.New("boom")

	fr := NewFrameReport(rep)
	assert.Equal(t, uint64(7), fr.Frame)
	assert.Equal(t, []string{"Idle", "GridResolved", "Idle"}, fr.States)
	assert.Equal(t, "view too small", fr.Skipped)
	assert.Equal(t, "boom", fr.Error)
	assert.Equal(t, [3]int{16, 16, 18}, fr.SliceSize)
	assert.InDelta(t, 1.5, fr.TimingsMS["Trace"], 1e-9)
}

func TestNewFrameReportOmitsSkipWhenCompleted(t *testing.T) {
	fr := NewFrameReport(sampleReport())
	assert.Empty(t, fr.Skipped)
	assert.Empty(t, fr.Error)
}

func TestTelemetryBroadcast(t *testing.T) {
	tel := NewTelemetry(ahr.NewNopLogger())
	srv := httptest.NewServer(tel)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return tel.Clients() == 2 }, time.Second, 5*time.Millisecond)

	tel.Publish(sampleReport())

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got FrameReport
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, uint64(7), got.Frame)
		assert.Equal(t, 2, got.PaletteEntries)
	}
}

func TestTelemetryLateClientGetsLastReport(t *testing.T) {
	tel := NewTelemetry(ahr.NewNopLogger())
	srv := httptest.NewServer(tel)
	defer srv.Close()

	tel.Publish(sampleReport())

	conn := dial(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got FrameReport
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint64(7), got.Frame)
}

func TestTelemetryForgetsClosedClients(t *testing.T) {
	tel := NewTelemetry(ahr.NewNopLogger())
	srv := httptest.NewServer(tel)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return tel.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return tel.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}
