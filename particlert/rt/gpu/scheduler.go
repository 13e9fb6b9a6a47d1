package gpu

import "fmt"

// Phase names reported to a Timer.
const (
	ScopeRecord = "record"
	ScopeSubmit = "submit"
)

// Timer receives the duration of each tick phase.
type Timer interface {
	BeginScope(name string)
	EndScope(name string)
}

type nopTimer struct{}

func (nopTimer) BeginScope(string) {}
func (nopTimer) EndScope(string)   {}

// FrameScheduler runs one simulate-then-render tick per call and owns the tick
// counter. Parity is a pure function of that counter.
type FrameScheduler struct {
	backend Backend
	store   *ParticleStore
	sim     *SimulationStage
	present *PresentationStage
	pairs   [2]BindingPair
	tick    uint64
	timer   Timer
}

func NewFrameScheduler(backend Backend, store *ParticleStore, sim *SimulationStage, present *PresentationStage, pairs [2]BindingPair) *FrameScheduler {
	return &FrameScheduler{
		backend: backend,
		store:   store,
		sim:     sim,
		present: present,
		pairs:   pairs,
		timer:   nopTimer{},
	}
}

// SetTimer routes phase timings to t; nil disables them.
func (s *FrameScheduler) SetTimer(t Timer) {
	if t == nil {
		t = nopTimer{}
	}
	s.timer = t
}

// Tick records compute then draw for the active pair, submits both as one
// unit and advances the counter. On error the counter is left alone, so the
// next call replays the same parity against the untouched read buffer.
func (s *FrameScheduler) Tick() error {
	pair := s.Active()

	s.timer.BeginScope(ScopeRecord)
	enc := NewEncoder()
	s.sim.Record(enc, pair)
	s.present.Record(enc, pair.Write, uint32(s.store.Count))
	list := enc.Finish()
	s.timer.EndScope(ScopeRecord)

	s.timer.BeginScope(ScopeSubmit)
	err := s.backend.Submit(list)
	s.timer.EndScope(ScopeSubmit)
	if err != nil {
		return fmt.Errorf("tick %d: %w", s.tick, err)
	}
	s.tick++
	return nil
}

func (s *FrameScheduler) TickCount() uint64 { return s.tick }

func (s *FrameScheduler) Parity() int { return int(s.tick % 2) }

// Active is the binding pair the next Tick will use.
func (s *FrameScheduler) Active() BindingPair { return s.pairs[s.Parity()] }

// Pairs exposes both prebuilt pairs.
func (s *FrameScheduler) Pairs() [2]BindingPair { return s.pairs }

// Current is the most recently written buffer. Before the first tick both
// buffers hold the initial population and A is reported.
func (s *FrameScheduler) Current() Buffer { return s.Active().Read }

// DispatchSize is the workgroup count each tick dispatches.
func (s *FrameScheduler) DispatchSize() uint32 {
	return DispatchSize(s.store.Count, s.sim.WorkgroupSize)
}

func (s *FrameScheduler) Store() *ParticleStore { return s.store }

func (s *FrameScheduler) Simulation() *SimulationStage { return s.sim }

func (s *FrameScheduler) Presentation() *PresentationStage { return s.present }
