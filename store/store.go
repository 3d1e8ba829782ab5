// Package store keeps completed fits under result names together with the
// quantities derived from them: yields, propagated yield errors and the
// binned goodness of fit.
//
// A Store is safe for concurrent use. Accessors never fail: an unknown name
// yields the zero value.
//
//	s, _ := store.New()
//	s.StoreResult("jpsi", res, m.Snapshot(), "robust")
//	s.StoreYields("jpsi", m.Yields().Formulas())
//	_ = s.ComputeChiSquare("jpsi", m, data, "mass", 100)
//	ok := s.IsGoodFit("jpsi", 5)
package store

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/arloliu/yieldfit/container"
	"github.com/arloliu/yieldfit/fit"
	"github.com/arloliu/yieldfit/internal/options"
	"github.com/arloliu/yieldfit/model"
)

// TimestampLayout is the layout of StoredResult.Timestamp.
const TimestampLayout = time.RFC3339Nano

// StoredResult is one named fit and its derived quantities.
type StoredResult struct {
	Name             string
	Result           *fit.Result
	Snapshot         *model.Snapshot
	Yields           map[string]float64
	YieldErrors      map[string]float64
	ChiSquare        float64
	NDF              float64
	ReducedChiSquare float64
	FitTypeTag       string
	Timestamp        string
}

func (r *StoredResult) clone() *StoredResult {
	out := *r
	out.Yields = maps.Clone(r.Yields)
	out.YieldErrors = maps.Clone(r.YieldErrors)
	if r.Snapshot != nil {
		snap := *r.Snapshot
		snap.Parameters = slices.Clone(r.Snapshot.Parameters)
		out.Snapshot = &snap
	}

	return &out
}

// Store holds StoredResults keyed by name.
type Store struct {
	mu      sync.RWMutex
	results map[string]*StoredResult

	logger        *slog.Logger
	writerOptions []container.Option
	now           func() time.Time
}

// Option configures a Store.
type Option = options.Option[*Store]

// WithLogger sets the logger used for store events.
func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(s *Store) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithContainerOptions sets the writer options used by Save and SaveAll.
func WithContainerOptions(opts ...container.Option) Option {
	return options.NoError(func(s *Store) {
		s.writerOptions = append(s.writerOptions, opts...)
	})
}

// WithClock overrides the timestamp source of stored results.
func WithClock(now func() time.Time) Option {
	return options.NoError(func(s *Store) {
		if now != nil {
			s.now = now
		}
	})
}

// New creates an empty Store.
//
// Parameters:
//   - opts: logger, container and clock options
//
// Returns:
//   - *Store: empty store
//   - error: configuration error from an invalid container option
func New(opts ...Option) (*Store, error) {
	s := &Store{
		results: make(map[string]*StoredResult),
		logger:  slog.Default(),
		now:     time.Now,
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}
	// Fail at construction rather than at the first Save.
	if _, err := container.NewWriter(s.writerOptions...); err != nil {
		return nil, err
	}

	return s, nil
}

// entry returns the result stored under name, creating it when absent.
// The caller holds the write lock.
func (s *Store) entry(name string) *StoredResult {
	r, ok := s.results[name]
	if !ok {
		r = &StoredResult{
			Name:        name,
			Yields:      map[string]float64{},
			YieldErrors: map[string]float64{},
			Timestamp:   s.now().UTC().Format(TimestampLayout),
		}
		s.results[name] = r
	}

	return r
}

// StoreResult records res under name, replacing any previous entry.
//
// Parameters:
//   - name: result name
//   - res: fit result, may be nil
//   - snap: model snapshot taken after the fit, may be nil
//   - tag: fit type tag, usually the strategy name
func (s *Store) StoreResult(name string, res *fit.Result, snap *model.Snapshot, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, name)
	r := s.entry(name)
	r.Result = res
	r.Snapshot = snap
	r.FitTypeTag = tag

	s.logger.Debug("stored fit result", "name", name, "tag", tag)
}

// StoreYields evaluates each formula and records its value under its key.
// The error is propagated through the covariance of the result stored under
// name, or is 0 when there is none. The entry is created when absent.
func (s *Store) StoreYields(name string, yields map[string]*model.Formula) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.entry(name)
	for key, f := range yields {
		if f == nil {
			continue
		}
		r.Yields[key] = f.Value()
		if r.Result != nil {
			r.YieldErrors[key] = f.Error(r.Result)
		} else {
			r.YieldErrors[key] = 0
		}
	}
}

// Put inserts a fully built StoredResult, replacing any entry with the same
// name.
func (s *Store) Put(r *StoredResult) {
	if r == nil {
		return
	}
	c := r.clone()
	if c.Yields == nil {
		c.Yields = map[string]float64{}
	}
	if c.YieldErrors == nil {
		c.YieldErrors = map[string]float64{}
	}

	s.mu.Lock()
	s.results[c.Name] = c
	s.mu.Unlock()
}

// IsGoodFit reports whether a result exists under name, its status is 0 and
// its reduced chi-square lies strictly between 0 and maxReduced.
func (s *Store) IsGoodFit(name string, maxReduced float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[name]
	if !ok || r.Result == nil || r.Result.Status() != fit.StatusOK {
		return false
	}

	return r.ReducedChiSquare > 0 && r.ReducedChiSquare < maxReduced
}

// Yield returns the stored value of yieldName under name.
func (s *Store) Yield(name, yieldName string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.results[name]; ok {
		return r.Yields[yieldName]
	}

	return 0
}

// YieldError returns the stored error of yieldName under name.
func (s *Store) YieldError(name, yieldName string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.results[name]; ok {
		return r.YieldErrors[yieldName]
	}

	return 0
}

// SignalYield returns the stored nsig of name.
func (s *Store) SignalYield(name string) float64 {
	return s.Yield(name, model.SignalYieldName)
}

// SignalYieldError returns the stored error of nsig.
func (s *Store) SignalYieldError(name string) float64 {
	return s.YieldError(name, model.SignalYieldName)
}

// BackgroundYield returns the stored nbkg of name.
func (s *Store) BackgroundYield(name string) float64 {
	return s.Yield(name, model.BackgroundYieldName)
}

// BackgroundYieldError returns the stored error of nbkg.
func (s *Store) BackgroundYieldError(name string) float64 {
	return s.YieldError(name, model.BackgroundYieldName)
}

func (s *Store) ChiSquare(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.results[name]; ok {
		return r.ChiSquare
	}

	return 0
}

func (s *Store) NDF(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.results[name]; ok {
		return r.NDF
	}

	return 0
}

func (s *Store) ReducedChiSquare(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.results[name]; ok {
		return r.ReducedChiSquare
	}

	return 0
}

// Result returns the fit result stored under name, or nil.
func (s *Store) Result(name string) *fit.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.results[name]; ok {
		return r.Result
	}

	return nil
}

// Get returns a copy of the entry stored under name.
func (s *Store) Get(name string) (*StoredResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[name]
	if !ok {
		return nil, false
	}

	return r.clone(), true
}

// Names returns the stored result names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.results))
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.results)
}

// Remove deletes the entry stored under name and reports whether it existed.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.results[name]
	delete(s.results, name)

	return ok
}

// Clear deletes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.results)
}
