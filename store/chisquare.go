package store

import (
	"math"

	"github.com/arloliu/yieldfit/dataset"
	"github.com/arloliu/yieldfit/errs"
	"github.com/arloliu/yieldfit/model"
)

// GoodnessOfFit is a binned Pearson chi-square of a model against data.
type GoodnessOfFit struct {
	ChiSquare        float64
	NDF              float64
	ReducedChiSquare float64
	// Bins is the number of bins with a positive expectation.
	Bins int
}

// ChiSquare compares data with m over nbins uniform bins of the model range.
//
// The expected count of a bin is the data weight inside the range times the
// model probability of the bin. Bins with no expectation are skipped. The
// number of degrees of freedom is nbins minus the floating parameters of m;
// the reduced chi-square is 0 when it is not positive.
//
// Parameters:
//   - m: fitted model
//   - data: dataset the model was fitted to
//   - variable: real column to bin, the model observable when empty
//   - nbins: number of bins, > 0
//
// Returns:
//   - GoodnessOfFit: chi-square, ndf and reduced chi-square
//   - error: ModelConstructionError for a nil or unnormalizable model,
//     DataError for missing data, ConfigurationError for a bad bin count
func ChiSquare(m *model.Model, data *dataset.Dataset, variable string, nbins int) (GoodnessOfFit, error) {
	if m == nil {
		return GoodnessOfFit{}, errs.ModelConstruction("chi-square: nil model")
	}
	if data == nil {
		return GoodnessOfFit{}, errs.Data("chi-square: nil dataset")
	}
	if variable == "" {
		variable = m.Observable()
	}

	lo, hi := m.Range()
	hist, err := data.Bin(variable, lo, hi, nbins)
	if err != nil {
		return GoodnessOfFit{}, err
	}

	eval := m.Prepare()
	if !eval.Valid() {
		return GoodnessOfFit{}, errs.ModelConstruction("chi-square: model %q has no valid normalization", m.Name())
	}
	total := hist.SumOfWeights()

	var gof GoodnessOfFit
	for i := range hist.NBins() {
		a, b := hist.BinRange(i)
		expected := total * eval.Probability(a, b)
		if !(expected > 0) || math.IsInf(expected, 0) {
			continue
		}
		d := hist.Counts[i] - expected
		gof.ChiSquare += d * d / expected
		gof.Bins++
	}

	gof.NDF = float64(nbins - len(m.FloatingParameters()))
	if gof.NDF > 0 {
		gof.ReducedChiSquare = gof.ChiSquare / gof.NDF
	}

	return gof, nil
}

// ComputeChiSquare computes the goodness of fit of m against data and
// records it under name. The entry is created when absent.
func (s *Store) ComputeChiSquare(name string, m *model.Model, data *dataset.Dataset, variable string, nbins int) (GoodnessOfFit, error) {
	gof, err := ChiSquare(m, data, variable, nbins)
	if err != nil {
		return GoodnessOfFit{}, err
	}

	s.mu.Lock()
	r := s.entry(name)
	r.ChiSquare = gof.ChiSquare
	r.NDF = gof.NDF
	r.ReducedChiSquare = gof.ReducedChiSquare
	s.mu.Unlock()

	s.logger.Debug("computed chi-square", "name", name, "chi2", gof.ChiSquare,
		"ndf", gof.NDF, "reduced", gof.ReducedChiSquare)

	return gof, nil
}
