package dataset

import (
	"math"
	"sort"

	"github.com/arloliu/yieldfit/errs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Binned is a histogram of one variable with uniform bins over [Lo, Hi].
type Binned struct {
	Variable string
	Lo, Hi   float64
	// Edges has len(Counts)+1 entries.
	Edges []float64
	// Counts holds the summed weights per bin.
	Counts []float64
}

// NBins returns the number of bins.
func (b *Binned) NBins() int {
	return len(b.Counts)
}

// SumOfWeights returns the total weight over all bins.
func (b *Binned) SumOfWeights() float64 {
	return floats.Sum(b.Counts)
}

// BinRange returns the edges of bin i.
func (b *Binned) BinRange(i int) (lo, hi float64) {
	return b.Edges[i], b.Edges[i+1]
}

// Center returns the midpoint of bin i.
func (b *Binned) Center(i int) float64 {
	return 0.5 * (b.Edges[i] + b.Edges[i+1])
}

// Bin histograms variable into nbins uniform bins over [lo, hi].
//
// Entries outside [lo, hi] are dropped; an entry equal to hi falls into the
// last bin.
//
// Parameters:
//   - variable: real column to bin
//   - lo, hi: histogram range, hi > lo
//   - nbins: number of bins, > 0
//
// Returns:
//   - *Binned: histogram whose counts sum to the weight inside the range
//   - error: DataError for an unknown variable, ConfigurationError for a bad range or bin count
func (d *Dataset) Bin(variable string, lo, hi float64, nbins int) (*Binned, error) {
	values, ok := d.Column(variable)
	if !ok {
		return nil, errs.Data("dataset %q: no real column %q", d.name, variable)
	}
	if nbins <= 0 {
		return nil, errs.Configuration("bin count must be positive, got %d", nbins)
	}
	if !(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, errs.Configuration("invalid binning range [%g, %g]", lo, hi)
	}

	type entry struct{ x, w float64 }
	entries := make([]entry, 0, len(values))
	for i, x := range values {
		if x >= lo && x <= hi {
			entries = append(entries, entry{x, d.Weight(i)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].x < entries[j].x })

	x := make([]float64, len(entries))
	w := make([]float64, len(entries))
	for i, e := range entries {
		x[i], w[i] = e.x, e.w
	}

	edges := floats.Span(make([]float64, nbins+1), lo, hi)
	// stat.Histogram treats the last divider as exclusive.
	dividers := append([]float64(nil), edges...)
	dividers[nbins] = math.Nextafter(hi, math.Inf(1))

	counts := make([]float64, nbins)
	if len(x) > 0 {
		stat.Histogram(counts, dividers, x, w)
	}

	return &Binned{
		Variable: variable,
		Lo:       lo,
		Hi:       hi,
		Edges:    edges,
		Counts:   counts,
	}, nil
}
