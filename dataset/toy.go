package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/arloliu/yieldfit/errs"
)

// ToySpec describes a Gaussian signal on top of an exponential background,
// both truncated to [Lo, Hi].
type ToySpec struct {
	Name     string
	Variable string
	Lo, Hi   float64
	Entries  int
	// SignalFraction is the exact share of signal entries, rounded to the
	// nearest entry.
	SignalFraction float64
	Mean           float64
	Sigma          float64
	// Slope is the exponential background slope; zero gives a flat background.
	Slope float64
}

// GenerateToy draws a reproducible pseudo dataset from spec.
//
// Returns:
//   - *Dataset: unweighted dataset with a single real column spec.Variable
//   - error: ConfigurationError for an invalid spec
func GenerateToy(spec ToySpec, seed uint64) (*Dataset, error) {
	switch {
	case spec.Variable == "":
		return nil, errs.Configuration("toy variable name is empty")
	case !(spec.Hi > spec.Lo):
		return nil, errs.Configuration("toy range [%g, %g] is empty", spec.Lo, spec.Hi)
	case spec.Entries < 0:
		return nil, errs.Configuration("toy entry count %d is negative", spec.Entries)
	case spec.SignalFraction < 0 || spec.SignalFraction > 1:
		return nil, errs.Configuration("toy signal fraction %g outside [0, 1]", spec.SignalFraction)
	case spec.SignalFraction > 0 && spec.Sigma <= 0:
		return nil, errs.Configuration("toy signal width %g must be positive", spec.Sigma)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec

	nsig := int(math.Round(spec.SignalFraction * float64(spec.Entries)))
	values := make([]float64, spec.Entries)
	for i := range nsig {
		values[i] = truncatedGaussian(rng, spec.Mean, spec.Sigma, spec.Lo, spec.Hi)
	}
	for i := nsig; i < spec.Entries; i++ {
		values[i] = truncatedExponential(rng, spec.Slope, spec.Lo, spec.Hi)
	}
	rng.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })

	name := spec.Name
	if name == "" {
		name = "toy"
	}

	return New(name, Real(spec.Variable, values))
}

func truncatedGaussian(rng *rand.Rand, mean, sigma, lo, hi float64) float64 {
	for {
		x := mean + sigma*rng.NormFloat64()
		if x >= lo && x <= hi {
			return x
		}
	}
}

// truncatedExponential inverts the CDF of exp(slope*x) on [lo, hi].
func truncatedExponential(rng *rand.Rand, slope, lo, hi float64) float64 {
	u := rng.Float64()
	if math.Abs(slope*(hi-lo)) < 1e-12 {
		return lo + u*(hi-lo)
	}

	// Work relative to lo to keep exp() in range.
	span := math.Expm1(slope * (hi - lo))
	x := lo + math.Log1p(u*span)/slope

	return min(max(x, lo), hi)
}
