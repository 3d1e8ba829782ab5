package store

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/yieldfit/container"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/fit"
	"github.com/arloliu/yieldfit/model"
)

// noResult marks a record whose entry holds yields but no fit result.
const noResult = -1

// Encode serializes results into one container.
//
// Parameters:
//   - results: entries to write, in order
//   - includeSnapshot: also write each entry's model snapshot
//   - opts: container writer options
//
// Returns:
//   - []byte: encoded container
//   - error: writer configuration or encoding failure
func Encode(results []*StoredResult, includeSnapshot bool, opts ...container.Option) ([]byte, error) {
	w, err := container.NewWriter(opts...)
	if err != nil {
		return nil, err
	}

	records := make([]container.Record, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		records = append(records, toRecord(r, includeSnapshot))
	}

	return w.Encode(records)
}

// Decode parses a container written by Encode.
func Decode(data []byte) ([]*StoredResult, error) {
	_, records, err := container.Decode(data)
	if err != nil {
		return nil, err
	}

	out := make([]*StoredResult, 0, len(records))
	for i := range records {
		out = append(out, fromRecord(&records[i]))
	}

	return out, nil
}

// Save writes the entry stored under name to path.
//
// Returns:
//   - error: ErrResultNotFound for an unknown name, or an encoding or I/O error
func (s *Store) Save(name, path string, includeSnapshot bool) error {
	s.mu.RLock()
	r, ok := s.results[name]
	var snapshot []*StoredResult
	if ok {
		snapshot = []*StoredResult{r.clone()}
	}
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", errs.ErrResultNotFound, name)
	}

	return s.write(path, snapshot, includeSnapshot)
}

// SaveAll writes every entry to path in name order.
func (s *Store) SaveAll(path string, includeSnapshot bool) error {
	s.mu.RLock()
	results := make([]*StoredResult, 0, len(s.results))
	for _, name := range slices.Sorted(maps.Keys(s.results)) {
		results = append(results, s.results[name].clone())
	}
	s.mu.RUnlock()

	return s.write(path, results, includeSnapshot)
}

func (s *Store) write(path string, results []*StoredResult, includeSnapshot bool) error {
	data, err := Encode(results, includeSnapshot, s.writerOptions...)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	// Write next to the target and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	s.logger.Info("saved fit results", "path", path, "count", len(results), "bytes", len(data))

	return nil
}

// Load creates a Store holding every entry of the container at path.
func Load(path string, opts ...Option) (*Store, error) {
	s, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := s.LoadInto(path); err != nil {
		return nil, err
	}

	return s, nil
}

// LoadInto reads the container at path and stores each entry, replacing
// entries with the same name.
//
// Returns:
//   - []string: loaded names in file order
//   - error: I/O or decoding error; the store is unchanged on error
func (s *Store) LoadInto(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	results, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	names := make([]string, 0, len(results))
	s.mu.Lock()
	for _, r := range results {
		s.results[r.Name] = r
		names = append(names, r.Name)
	}
	s.mu.Unlock()

	s.logger.Info("loaded fit results", "path", path, "count", len(names))

	return names, nil
}

// FileSource returns a constraint source serving the fit result stored as
// name in the container at path. The file is read when the source is loaded.
func FileSource(path, name string) fit.LoaderSource {
	return fit.LoaderSource{
		Label: fmt.Sprintf("result %q in %s", name, path),
		Loader: func(ctx context.Context) (*fit.Result, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			results, err := Decode(data)
			if err != nil {
				return nil, err
			}
			for _, r := range results {
				if r.Name == name && r.Result != nil {
					return r.Result, nil
				}
			}

			return nil, fmt.Errorf("%w: %q in %s", errs.ErrResultNotFound, name, path)
		},
	}
}

func toRecord(r *StoredResult, includeSnapshot bool) container.Record {
	rec := container.Record{
		Name:             r.Name,
		FitTypeTag:       r.FitTypeTag,
		Timestamp:        r.Timestamp,
		Status:           noResult,
		ChiSquare:        r.ChiSquare,
		NDF:              r.NDF,
		ReducedChiSquare: r.ReducedChiSquare,
	}

	if r.Result != nil {
		p := r.Result.Params()
		rec.Status = int32(p.Status)
		rec.AuxStatus = int32(p.AuxStatus)
		rec.CovQuality = int32(p.CovQuality)
		rec.Attempts = int32(p.Attempts)
		rec.StrategyLevel = int32(p.StrategyLevel)
		rec.Terminal = uint8(p.Terminal)
		rec.MinNLL = p.MinNLL
		rec.EDM = p.EDM

		for _, name := range r.Result.Names() {
			e := p.Estimates[name]
			rec.Parameters = append(rec.Parameters, container.Parameter{
				Name:     name,
				Value:    e.Value,
				Error:    e.Error,
				ErrorLo:  e.ErrorLo,
				ErrorHi:  e.ErrorHi,
				Min:      e.Lower,
				Max:      e.Upper,
				Constant: e.Constant,
			})
		}

		if p.Covariance != nil {
			n := len(p.CovarianceNames)
			rec.CovarianceNames = p.CovarianceNames
			rec.Covariance = make([]float64, 0, n*n)
			for i := range n {
				for j := range n {
					rec.Covariance = append(rec.Covariance, p.Covariance.At(i, j))
				}
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(r.Yields)) {
		rec.Yields = append(rec.Yields, container.Yield{
			Name:  name,
			Value: r.Yields[name],
			Error: r.YieldErrors[name],
		})
	}

	if includeSnapshot && r.Snapshot != nil {
		snap := &container.Snapshot{
			Name:       r.Snapshot.Name,
			Observable: r.Snapshot.Observable,
			RangeMin:   r.Snapshot.RangeMin,
			RangeMax:   r.Snapshot.RangeMax,
			Signal:     r.Snapshot.Signal,
			Background: r.Snapshot.Background,
		}
		for _, mp := range r.Snapshot.Parameters {
			snap.Parameters = append(snap.Parameters, container.Parameter{
				Name:     mp.Name,
				Value:    mp.Value,
				Error:    mp.Error,
				ErrorLo:  mp.ErrorLo,
				ErrorHi:  mp.ErrorHi,
				Min:      mp.Min,
				Max:      mp.Max,
				Constant: mp.Constant,
			})
		}
		rec.Snapshot = snap
	}

	return rec
}

func fromRecord(rec *container.Record) *StoredResult {
	r := &StoredResult{
		Name:             rec.Name,
		FitTypeTag:       rec.FitTypeTag,
		Timestamp:        rec.Timestamp,
		ChiSquare:        rec.ChiSquare,
		NDF:              rec.NDF,
		ReducedChiSquare: rec.ReducedChiSquare,
		Yields:           make(map[string]float64, len(rec.Yields)),
		YieldErrors:      make(map[string]float64, len(rec.Yields)),
	}

	for _, y := range rec.Yields {
		r.Yields[y.Name] = y.Value
		r.YieldErrors[y.Name] = y.Error
	}

	if rec.Status != noResult {
		p := fit.ResultParams{
			Status:          int(rec.Status),
			AuxStatus:       int(rec.AuxStatus),
			CovQuality:      int(rec.CovQuality),
			Estimates:       make(map[string]fit.Estimate, len(rec.Parameters)),
			MinNLL:          rec.MinNLL,
			EDM:             rec.EDM,
			Attempts:        int(rec.Attempts),
			Terminal:        fit.TerminalState(rec.Terminal),
			StrategyLevel:   int(rec.StrategyLevel),
			CovarianceNames: rec.CovarianceNames,
		}
		for _, cp := range rec.Parameters {
			p.Order = append(p.Order, cp.Name)
			p.Estimates[cp.Name] = fit.Estimate{
				Value:    cp.Value,
				Error:    cp.Error,
				ErrorLo:  cp.ErrorLo,
				ErrorHi:  cp.ErrorHi,
				Lower:    cp.Min,
				Upper:    cp.Max,
				Constant: cp.Constant,
			}
		}
		if n := len(rec.CovarianceNames); n > 0 && len(rec.Covariance) == n*n {
			p.Covariance = mat.NewSymDense(n, slices.Clone(rec.Covariance))
		}
		r.Result = fit.NewResult(p)
	}

	if rec.Snapshot != nil {
		snap := &model.Snapshot{
			Name:       rec.Snapshot.Name,
			Observable: rec.Snapshot.Observable,
			RangeMin:   rec.Snapshot.RangeMin,
			RangeMax:   rec.Snapshot.RangeMax,
			Signal:     rec.Snapshot.Signal,
			Background: rec.Snapshot.Background,
		}
		for _, cp := range rec.Snapshot.Parameters {
			snap.Parameters = append(snap.Parameters, model.Parameter{
				Name:     cp.Name,
				Value:    cp.Value,
				Min:      cp.Min,
				Max:      cp.Max,
				Error:    cp.Error,
				ErrorLo:  cp.ErrorLo,
				ErrorHi:  cp.ErrorHi,
				Constant: cp.Constant,
			})
		}
		r.Snapshot = snap
	}

	return r
}
