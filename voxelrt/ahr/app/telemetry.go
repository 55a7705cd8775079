package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/gekko3d/ahr"
	"github.com/gorilla/websocket"
)

// FrameReport is the JSON form of a frame report sent to telemetry clients.
type FrameReport struct {
	Frame          uint64             `json:"frame"`
	States         []string           `json:"states"`
	Skipped        string             `json:"skipped,omitempty"`
	Error          string             `json:"error,omitempty"`
	SliceSize      [3]int             `json:"sliceSize"`
	VoxelSize      float32            `json:"voxelSize"`
	Reallocated    bool               `json:"reallocated"`
	StaticRebuild  bool               `json:"staticRebuild"`
	PaletteEntries int                `json:"paletteEntries"`
	PaletteDropped int                `json:"paletteDropped"`
	LightsDropped  int                `json:"lightsDropped"`
	TimingsMS      map[string]float64 `json:"timingsMs"`
}

func NewFrameReport(rep ahr.Report) FrameReport {
	fr := FrameReport{
		Frame:          rep.Frame,
		States:         make([]string, len(rep.States)),
		SliceSize:      rep.Grid.SliceSize,
		VoxelSize:      rep.Grid.VoxelSize,
		Reallocated:    rep.Reallocated,
		StaticRebuild:  rep.StaticRebuildTriggered,
		PaletteEntries: rep.PaletteEntries,
		PaletteDropped: rep.PaletteDropped,
		LightsDropped:  rep.LightsDropped,
		TimingsMS:      make(map[string]float64, len(rep.Timings)),
	}
	for i, s := range rep.States {
		fr.States[i] = s.String()
	}
	if rep.Skipped != ahr.NotSkipped {
		fr.Skipped = rep.Skipped.String()
	}
	if rep.Err != nil {
		fr.Error = rep.Err.Error()
	}
	for _, t := range rep.Timings {
		fr.TimingsMS[t.Stage] = float64(t.Duration) / float64(time.Millisecond)
	}
	return fr
}

// Telemetry streams frame reports to websocket clients.
type Telemetry struct {
	upgrader websocket.Upgrader
	log      ahr.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	last    *FrameReport
}

func NewTelemetry(log ahr.Logger) *Telemetry {
	return &Telemetry{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away. New clients get the latest report right away.
func (t *Telemetry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warnf("telemetry upgrade: %v", err)
		return
	}
	defer conn.Close()

	connMu := &sync.Mutex{}
	t.mu.Lock()
	t.clients[conn] = connMu
	last := t.last
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.clients, conn)
		t.mu.Unlock()
	}()

	if last != nil {
		connMu.Lock()
		err := conn.WriteJSON(last)
		connMu.Unlock()
		if err != nil {
			return
		}
	}

	// Clients only listen; reading is what notices a close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (t *Telemetry) Clients() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}

// Publish sends rep to every client. Clients that fail to receive it are dropped.
func (t *Telemetry) Publish(rep ahr.Report) {
	fr := NewFrameReport(rep)

	t.mu.Lock()
	t.last = &fr
	t.mu.Unlock()

	var failed []*websocket.Conn
	t.mu.RLock()
	for conn, connMu := range t.clients {
		connMu.Lock()
		err := conn.WriteJSON(&fr)
		connMu.Unlock()
		if err != nil {
			failed = append(failed, conn)
		}
	}
	t.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	t.mu.Lock()
	for _, conn := range failed {
		delete(t.clients, conn)
		conn.Close()
	}
	t.mu.Unlock()
}
