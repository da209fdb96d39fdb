package store

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// Definition describes a gauge family held by the store.
type Definition struct {
	Name       string
	Help       string
	LabelNames []string
}

// Sample is the latest value of one label combination. It is replaced as a
// whole, never modified in place.
type Sample struct {
	Labels    model.LabelSet
	Value     float64
	UpdatedAt time.Time
}

// Family is a point-in-time copy of one metric and its samples.
type Family struct {
	Definition
	Samples []Sample
}

// Update is a single write applied by Apply.
type Update struct {
	Metric string
	Labels model.LabelSet
	Value  float64
}

// Batch groups the writes of one collection cycle. Metrics listed in Clear
// are emptied before Updates are written.
type Batch struct {
	Clear   []string
	Updates []Update
}

type family struct {
	def     Definition
	names   string
	samples map[string]Sample
}

// Store keeps the latest value per (metric, label set). All state is guarded
// by a single RWMutex: writers take the write lock, snapshots and the first
// phase of a sweep take the read lock.
type Store struct {
	mu       sync.RWMutex
	families map[string]*family

	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used to stamp samples.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		families: make(map[string]*family),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register declares a metric. Registering the same name again with the same
// label names is a no-op; a different label-name set is an error.
func (s *Store) Register(def Definition) error {
	names := namesKey(def.LabelNames)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.families[def.Name]; ok {
		if existing.names != names {
			return fmt.Errorf("%w: %s has labels [%s], got [%s]",
				ErrLabelConflict, def.Name, existing.names, names)
		}
		return nil
	}

	def.LabelNames = slices.Clone(def.LabelNames)
	s.families[def.Name] = &family{
		def:     def,
		names:   names,
		samples: make(map[string]Sample),
	}
	return nil
}

// Upsert stores value for the given label set, replacing any previous sample.
func (s *Store) Upsert(name string, labels model.LabelSet, value float64) error {
	s.mu.Lock()
	err := s.upsertLocked(name, labels, value, s.now())
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Dropping sample", zap.String("metric", name), zap.Error(err))
	}
	return err
}

func (s *Store) upsertLocked(name string, labels model.LabelSet, value float64, now time.Time) error {
	f, ok := s.families[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	if !sameNames(labels, f.def.LabelNames) {
		return fmt.Errorf("%w: %s expects [%s]", ErrLabelMismatch, name, f.names)
	}

	f.samples[labelKey(labels)] = Sample{
		Labels:    labels.Clone(),
		Value:     value,
		UpdatedAt: now,
	}
	return nil
}

// ClearMetric removes every sample of the metric and returns how many were
// removed. Unknown metrics are ignored.
func (s *Store) ClearMetric(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clearLocked(name)
}

func (s *Store) clearLocked(name string) int {
	f, ok := s.families[name]
	if !ok {
		return 0
	}
	n := len(f.samples)
	if n > 0 {
		f.samples = make(map[string]Sample)
	}
	return n
}

// Apply clears and writes a batch under one lock acquisition, so a reader
// sees either the previous cycle or the new one. Invalid updates are logged
// and dropped; the number of samples written is returned.
func (s *Store) Apply(b Batch) int {
	var dropped []error

	s.mu.Lock()
	now := s.now()
	for _, name := range b.Clear {
		s.clearLocked(name)
	}
	written := 0
	for _, u := range b.Updates {
		if err := s.upsertLocked(u.Metric, u.Labels, u.Value, now); err != nil {
			dropped = append(dropped, err)
			continue
		}
		written++
	}
	s.mu.Unlock()

	for _, err := range dropped {
		s.logger.Warn("Dropping sample", zap.Error(err))
	}
	return written
}

// Get returns the sample stored for the label set.
func (s *Store) Get(name string, labels model.LabelSet) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.families[name]
	if !ok {
		return Sample{}, false
	}
	smp, ok := f.samples[labelKey(labels)]
	return smp, ok
}

// Len returns the number of samples across all metrics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, f := range s.families {
		n += len(f.samples)
	}
	return n
}

// Snapshot copies every registered metric and its samples. Families are
// sorted by name and samples by label key; the lock is released before
// sorting.
func (s *Store) Snapshot() []Family {
	type keyed struct {
		key string
		Sample
	}
	type copied struct {
		def     Definition
		samples []keyed
	}

	s.mu.RLock()
	out := make([]copied, 0, len(s.families))
	for _, f := range s.families {
		c := copied{def: f.def, samples: make([]keyed, 0, len(f.samples))}
		for key, smp := range f.samples {
			c.samples = append(c.samples, keyed{key: key, Sample: smp})
		}
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].def.Name < out[j].def.Name })

	families := make([]Family, 0, len(out))
	for _, c := range out {
		sort.Slice(c.samples, func(i, j int) bool { return c.samples[i].key < c.samples[j].key })
		f := Family{Definition: c.def, Samples: make([]Sample, len(c.samples))}
		for i, k := range c.samples {
			f.Samples[i] = k.Sample
		}
		families = append(families, f)
	}
	return families
}

// SweepExpired removes samples whose last update is older than ttl at now.
// Candidates are found under the read lock; each one is checked again under
// the write lock, so a sample refreshed in between is kept.
func (s *Store) SweepExpired(ttl time.Duration, now time.Time) int {
	type candidate struct {
		metric, key string
	}

	var stale []candidate
	s.mu.RLock()
	for name, f := range s.families {
		for key, smp := range f.samples {
			if now.Sub(smp.UpdatedAt) > ttl {
				stale = append(stale, candidate{metric: name, key: key})
			}
		}
	}
	s.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	removed := 0
	s.mu.Lock()
	for _, c := range stale {
		f, ok := s.families[c.metric]
		if !ok {
			continue
		}
		smp, ok := f.samples[c.key]
		if !ok || now.Sub(smp.UpdatedAt) <= ttl {
			continue
		}
		delete(f.samples, c.key)
		removed++
	}
	s.mu.Unlock()

	return removed
}
