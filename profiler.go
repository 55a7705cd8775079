package ahr

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// historyLen is the number of frames kept per scope for the rolling statistics.
const historyLen = 120

// Profiler records CPU time per pipeline stage and per-frame counters.
// It belongs to the render thread.
type Profiler struct {
	Scopes     map[string]time.Duration
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string

	history map[string][]float64 // milliseconds, ring of historyLen
	next    map[string]int
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
		Order:      make([]string, 0),
		history:    make(map[string][]float64),
		next:       make(map[string]int),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = time.Now()
	found := false
	for _, n := range p.Order {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		p.Order = append(p.Order, name)
	}
}

func (p *Profiler) EndScope(name string) time.Duration {
	start, ok := p.StartTimes[name]
	if !ok {
		return 0
	}
	d := time.Since(start)
	p.Scopes[name] = d
	p.record(name, float64(d.Microseconds())/1000.0)
	return d
}

func (p *Profiler) record(name string, ms float64) {
	h := p.history[name]
	if len(h) < historyLen {
		p.history[name] = append(h, ms)
		return
	}
	i := p.next[name]
	h[i] = ms
	p.next[name] = (i + 1) % historyLen
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

// Reset clears the timings of the last frame but keeps order and history.
func (p *Profiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
}

// Average returns the mean and standard deviation in milliseconds of a scope
// over the recorded history.
func (p *Profiler) Average(name string) (mean, std float64) {
	h := p.history[name]
	if len(h) == 0 {
		return 0, 0
	}
	if len(h) == 1 {
		return h[0], 0
	}
	return stat.MeanStdDev(h, nil)
}

// Timings returns the last frame's scope durations in stage order.
func (p *Profiler) Timings() []StageTiming {
	out := make([]StageTiming, 0, len(p.Order))
	for _, name := range p.Order {
		out = append(out, StageTiming{Stage: name, Duration: p.Scopes[name]})
	}
	return out
}

func (p *Profiler) StatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.Order {
		ms := float64(p.Scopes[name].Microseconds()) / 1000.0
		mean, std := p.Average(name)
		sb.WriteString(fmt.Sprintf("  %-15s: %.2f ms (avg %.2f ± %.2f)\n", name, ms, mean, std))
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-15s: %d\n", k, p.Counts[k]))
	}
	return sb.String()
}
