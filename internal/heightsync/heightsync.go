// Package heightsync keeps card heights uniform across a chart. Cards are
// measured per record, the global maximum wins, the result is clamped to
// the document's min and max node heights and applied to every record.
// Re-measuring is cheap but re-rendering is not, so applications schedule
// syncs through a debounce window and observers only hear about heights
// that actually changed.
package heightsync

import (
	"maps"
	"sync"
	"time"

	"github.com/starford/stemma/internal/document"
)

// Measurer reports the natural height of one record's card in pixels.
type Measurer interface {
	Measure(doc *document.Document, rec document.Record) float64
}

// DefaultDelay is the debounce window for scheduled syncs.
const DefaultDelay = 150 * time.Millisecond

// Service computes and distributes the uniform card height.
type Service struct {
	measurer Measurer
	delay    time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending *pendingSync
	heights map[string]float64
	subs    []subscriber
	nextID  int
	closed  bool
}

// pendingSync is one queued measurement. measured carries client-reported
// pixel heights that take precedence over the service's own measurer.
type pendingSync struct {
	doc      *document.Document
	measured map[string]float64
}

type subscriber struct {
	id int
	fn func(map[string]float64)
}

// Option configures a Service.
type Option func(*Service)

// WithDelay overrides the debounce window.
func WithDelay(d time.Duration) Option {
	return func(s *Service) { s.delay = d }
}

func New(m Measurer, opts ...Option) *Service {
	s := &Service{
		measurer: m,
		delay:    DefaultDelay,
		heights:  map[string]float64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compute measures the document and returns the uniform heights without
// touching service state or observers. Render paths that already hold
// their own locks use this form.
func (s *Service) Compute(doc *document.Document) map[string]float64 {
	return s.compute(doc, nil)
}

// Sync measures the document immediately, applies the uniform height and
// returns a copy of the per-record heights. Observers are notified only
// when the applied heights differ from the previous ones.
func (s *Service) Sync(doc *document.Document) map[string]float64 {
	heights := s.compute(doc, nil)
	s.apply(heights)
	return maps.Clone(heights)
}

// Schedule queues a measurement of doc after the debounce window. Calls
// inside the window replace the queued document and restart the timer, so
// a burst of edits measures once, against the latest state.
func (s *Service) Schedule(doc *document.Document) {
	s.schedule(&pendingSync{doc: doc})
}

// ScheduleMeasured queues a sync fed by real measurements, keyed by record
// id in pixels. Records without a reported value fall back to the
// service's measurer. Like Schedule, the latest call in a window wins.
func (s *Service) ScheduleMeasured(doc *document.Document, measured map[string]float64) {
	s.schedule(&pendingSync{doc: doc, measured: maps.Clone(measured)})
}

func (s *Service) schedule(p *pendingSync) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = p
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.flush)
}

func (s *Service) flush() {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	closed := s.closed
	s.mu.Unlock()
	if p == nil || closed {
		return
	}
	s.apply(s.compute(p.doc, p.measured))
}

// Heights returns a copy of the last applied heights.
func (s *Service) Heights() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.heights)
}

// Observe registers a callback for height changes and returns its cancel
// function. The callback receives a private copy and runs outside the
// service lock.
func (s *Service) Observe(fn func(map[string]float64)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Close cancels any pending scheduled sync.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
	}
}

// compute measures every record's content, adds the card padding to the
// global maximum and clamps the result to the document's bounds. The
// clamped height applies to every record, including the ones that needed
// less. An empty document yields no heights.
func (s *Service) compute(doc *document.Document, measured map[string]float64) map[string]float64 {
	if len(doc.Records) == 0 {
		return map[string]float64{}
	}

	global := 0.0
	for _, rec := range doc.Records {
		h, ok := measured[rec.Key()]
		if !ok {
			h = s.measurer.Measure(doc, rec)
		}
		if h > global {
			global = h
		}
	}

	unified := global + 2*doc.Options.Float(document.OptCardPadding)
	minH := doc.Options.Float(document.OptMinNodeHeight)
	maxH := doc.Options.Float(document.OptMaxNodeHeight)
	if unified < minH {
		unified = minH
	}
	if maxH > 0 && unified > maxH {
		unified = maxH
	}

	heights := make(map[string]float64, len(doc.Records))
	for _, rec := range doc.Records {
		heights[rec.Key()] = unified
	}
	return heights
}

func (s *Service) apply(heights map[string]float64) {
	s.mu.Lock()
	if maps.Equal(s.heights, heights) {
		s.mu.Unlock()
		return
	}
	s.heights = heights
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(maps.Clone(heights))
	}
}
