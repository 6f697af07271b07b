package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/bode.report/internal/bode"
)

// Status is the JSON body of GET /api/sweep.
type Status struct {
	RunID     uuid.UUID      `json:"run_id"`
	Stage     bode.Stage     `json:"stage"`
	Index     int            `json:"index"`
	Total     int            `json:"total"`
	Pass      int            `json:"retry_pass,omitempty"`
	Error     string         `json:"error,omitempty"`
	Plan      bode.SweepPlan `json:"plan"`
	Amplitude float64        `json:"amplitude_vpp"`
	Points    []bode.Point   `json:"points"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Tracker accumulates the progress of one sweep for the HTTP handlers and
// fans progress events out to subscribers. Observe is the sweeper's
// OnProgress hook.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	final  *bode.SweepResult
	now    func() time.Time

	subMu sync.Mutex
	subs  map[uuid.UUID]chan bode.Progress
}

// NewTracker returns a tracker for a sweep of plan at amplitude Vpp.
func NewTracker(plan bode.SweepPlan, amplitude float64) *Tracker {
	t := &Tracker{
		now:  time.Now,
		subs: make(map[uuid.UUID]chan bode.Progress),
	}
	t.status = Status{Plan: plan, Amplitude: amplitude, UpdatedAt: t.now()}
	return t
}

// Observe records p.
func (t *Tracker) Observe(p bode.Progress) {
	t.mu.Lock()
	s := &t.status
	if p.Stage == bode.StageSetup {
		s.Points = nil
		t.final = nil
	}
	s.RunID = p.RunID
	s.Stage = p.Stage
	s.Total = p.Total
	s.Error = p.Err
	switch p.Stage {
	case bode.StageSweeping:
		s.Index = p.Index
		if p.Point != nil {
			s.Points = append(s.Points, *p.Point)
		}
	case bode.StageRetrying:
		s.Pass = p.Pass
	case bode.StageDone:
		s.Index = p.Index
	}
	s.UpdatedAt = t.now()
	t.mu.Unlock()

	t.broadcast(p)
}

// Finish replaces the per-point progress with the final result, which
// includes the retried and reclassified points.
func (t *Tracker) Finish(r *bode.SweepResult) {
	if r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.final = r
	t.status.Points = append([]bode.Point(nil), r.Points...)
	t.status.UpdatedAt = t.now()
}

// Status returns a copy of the current status.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.status
	s.Points = append([]bode.Point(nil), t.status.Points...)
	return s
}

// Result returns the final result once Finish was called, otherwise a
// partial result built from the points seen so far.
func (t *Tracker) Result() *bode.SweepResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.final != nil {
		return t.final
	}
	return &bode.SweepResult{
		RunID:     t.status.RunID,
		Plan:      t.status.Plan,
		Amplitude: t.status.Amplitude,
		Points:    append([]bode.Point(nil), t.status.Points...),
	}
}

// Subscribe returns a channel receiving every later progress event. Slow
// subscribers miss events rather than stall the sweep.
func (t *Tracker) Subscribe() (uuid.UUID, <-chan bode.Progress) {
	id := uuid.New()
	ch := make(chan bode.Progress, 32)
	t.subMu.Lock()
	t.subs[id] = ch
	t.subMu.Unlock()
	return id, ch
}

// Unsubscribe closes and removes the subscription id.
func (t *Tracker) Unsubscribe(id uuid.UUID) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if ch, ok := t.subs[id]; ok {
		close(ch)
		delete(t.subs, id)
	}
}

func (t *Tracker) broadcast(p bode.Progress) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- p:
		default:
		}
	}
}
