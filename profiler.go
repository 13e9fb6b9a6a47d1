package gpuparticles

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler collects per-tick phase timings and running counters. Timings
// accumulate over a window that Reset closes; counters never reset.
type Profiler struct {
	Last    map[string]time.Duration
	Total   map[string]time.Duration
	Samples map[string]int
	Counts  map[string]int
	Order   []string

	started map[string]time.Time
	now     func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		Last:    make(map[string]time.Duration),
		Total:   make(map[string]time.Duration),
		Samples: make(map[string]int),
		Counts:  make(map[string]int),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	if _, seen := p.Samples[name]; !seen {
		p.Samples[name] = 0
		p.Order = append(p.Order, name)
	}
	p.started[name] = p.now()
}

func (p *Profiler) EndScope(name string) {
	start, ok := p.started[name]
	if !ok {
		return
	}
	delete(p.started, name)
	d := p.now().Sub(start)
	p.Last[name] = d
	p.Total[name] += d
	p.Samples[name]++
}

// Average is the mean duration of name over the current window.
func (p *Profiler) Average(name string) time.Duration {
	n := p.Samples[name]
	if n == 0 {
		return 0
	}
	return p.Total[name] / time.Duration(n)
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

func (p *Profiler) Increment(name string) {
	p.Counts[name]++
}

// Reset starts a new timing window.
func (p *Profiler) Reset() {
	for _, name := range p.Order {
		p.Total[name] = 0
		p.Samples[name] = 0
	}
}

func (p *Profiler) GetStatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU, last / avg):\n")
	for _, name := range p.Order {
		fmt.Fprintf(&sb, "  %-15s: %.2f / %.2f ms (%d)\n",
			name, ms(p.Last[name]), ms(p.Average(name)), p.Samples[name])
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-15s: %d\n", k, p.Counts[k])
	}

	return sb.String()
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
