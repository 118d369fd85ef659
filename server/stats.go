package server

import (
	"expvar"
	"sync"
	"time"

	"github.com/facebookgo/stats"
)

// expvarStats is a stats.Client publishing its counters under a single
// expvar map, so they show up at /debug/vars.
//
// Sums are kept as running totals. Averages and histograms keep a count and
// a total (as key.count and key.total) plus the largest value seen (key.max).
type expvarStats struct {
	m *expvar.Map

	mu  sync.Mutex
	max map[string]*expvar.Float
}

var _ stats.Client = &expvarStats{}

var (
	publishedMu sync.Mutex
	published   = make(map[string]*expvarStats)
)

// NewExpvarStats returns a stats.Client exported as the expvar variable
// name. Asking for the same name twice returns the same client, since expvar
// does not allow a name to be published twice.
func NewExpvarStats(name string) stats.Client {
	publishedMu.Lock()
	defer publishedMu.Unlock()
	if s, ok := published[name]; ok {
		return s
	}
	s := &expvarStats{
		m:   expvar.NewMap(name),
		max: make(map[string]*expvar.Float),
	}
	published[name] = s
	return s
}

func (s *expvarStats) BumpSum(key string, val float64) {
	s.m.AddFloat(key, val)
}

func (s *expvarStats) BumpAvg(key string, val float64) {
	s.m.Add(key+".count", 1)
	s.m.AddFloat(key+".total", val)
	s.setMax(key+".max", val)
}

func (s *expvarStats) BumpHistogram(key string, val float64) {
	s.BumpAvg(key, val)
}

func (s *expvarStats) BumpTime(key string) interface {
	End()
} {
	return endTimer{s: s, key: key, start: time.Now()}
}

func (s *expvarStats) setMax(key string, val float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.max[key]
	if !ok {
		f = new(expvar.Float)
		f.Set(val)
		s.max[key] = f
		s.m.Set(key, f)
		return
	}
	if val > f.Value() {
		f.Set(val)
	}
}

type endTimer struct {
	s     *expvarStats
	key   string
	start time.Time
}

// End records the seconds elapsed since the timer was started.
func (t endTimer) End() {
	t.s.BumpHistogram(t.key, time.Since(t.start).Seconds())
}
