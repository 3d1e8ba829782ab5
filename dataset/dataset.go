// Package dataset holds the observations a model is fitted to.
//
// A Dataset is a set of equally long columns, either real-valued or
// categorical, with optional per-entry weights. Datasets are immutable once
// built: FilteredBy, InRange and Bin return new values and never touch the
// receiver.
package dataset

import (
	"fmt"
	"math"

	"github.com/arloliu/yieldfit/errs"
	"gonum.org/v1/gonum/floats"
)

// Column is a named column used to build a Dataset. Exactly one of Real and
// Category is set.
type Column struct {
	Name     string
	Real     []float64
	Category []string
}

// Real creates a real-valued column.
func Real(name string, values []float64) Column {
	return Column{Name: name, Real: values}
}

// Category creates a categorical column.
func Category(name string, values []string) Column {
	return Column{Name: name, Category: values}
}

func (c Column) len() int {
	if c.Real != nil {
		return len(c.Real)
	}

	return len(c.Category)
}

// Dataset is an immutable table of observations.
type Dataset struct {
	name     string
	n        int
	columns  []Column
	index    map[string]int
	weights  []float64
	sumW     float64
	weighted bool
}

// New creates an unweighted dataset.
//
// Parameters:
//   - name: dataset name, used in messages
//   - columns: columns of equal length with unique names
//
// Returns:
//   - *Dataset: the dataset
//   - error: DataError on a length mismatch, duplicate or empty column name
func New(name string, columns ...Column) (*Dataset, error) {
	return build(name, nil, columns)
}

// NewWeighted creates a dataset with one weight per entry.
func NewWeighted(name string, weights []float64, columns ...Column) (*Dataset, error) {
	if weights == nil {
		weights = []float64{}
	}

	return build(name, weights, columns)
}

func build(name string, weights []float64, columns []Column) (*Dataset, error) {
	d := &Dataset{
		name:     name,
		index:    make(map[string]int, len(columns)),
		weighted: weights != nil,
	}

	d.n = -1
	for _, c := range columns {
		if c.Name == "" {
			return nil, errs.Data("dataset %q: column with empty name", name)
		}
		if c.Real != nil && c.Category != nil {
			return nil, errs.Data("dataset %q: column %q is both real and categorical", name, c.Name)
		}
		if _, dup := d.index[c.Name]; dup {
			return nil, errs.Data("dataset %q: duplicate column %q", name, c.Name)
		}
		if d.n >= 0 && c.len() != d.n {
			return nil, errs.Data("dataset %q: column %q has %d entries, want %d", name, c.Name, c.len(), d.n)
		}
		d.n = c.len()
		d.index[c.Name] = len(d.columns)
		d.columns = append(d.columns, c)
	}
	if d.n < 0 {
		d.n = len(weights)
	}

	if d.weighted {
		if len(weights) != d.n {
			return nil, errs.Data("dataset %q: %d weights for %d entries", name, len(weights), d.n)
		}
		for i, w := range weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, errs.Data("dataset %q: weight %d is not finite", name, i)
			}
		}
		d.weights = weights
		d.sumW = floats.Sum(weights)
	} else {
		d.sumW = float64(d.n)
	}

	return d, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string {
	return d.name
}

// EntryCount returns the number of entries.
func (d *Dataset) EntryCount() int {
	return d.n
}

// SumOfWeights returns the total weight, which equals EntryCount for an
// unweighted dataset.
func (d *Dataset) SumOfWeights() float64 {
	return d.sumW
}

// IsWeighted reports whether the dataset carries explicit weights.
func (d *Dataset) IsWeighted() bool {
	return d.weighted
}

// Weight returns the weight of entry i.
func (d *Dataset) Weight(i int) float64 {
	if !d.weighted {
		return 1
	}

	return d.weights[i]
}

// Weights returns the weight column, or nil for an unweighted dataset.
// The slice must not be modified.
func (d *Dataset) Weights() []float64 {
	return d.weights
}

// Has reports whether a column named name exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns the real values of column name. The slice must not be modified.
func (d *Dataset) Column(name string) ([]float64, bool) {
	i, ok := d.index[name]
	if !ok || d.columns[i].Real == nil {
		return nil, false
	}

	return d.columns[i].Real, true
}

// Labels returns the values of categorical column name.
func (d *Dataset) Labels(name string) ([]string, bool) {
	i, ok := d.index[name]
	if !ok || d.columns[i].Category == nil {
		return nil, false
	}

	return d.columns[i].Category, true
}

// RealVariables returns the names of the real-valued columns in declaration order.
func (d *Dataset) RealVariables() []string {
	names := make([]string, 0, len(d.columns))
	for _, c := range d.columns {
		if c.Real != nil {
			names = append(names, c.Name)
		}
	}

	return names
}

// Range returns the minimum and maximum of a real column.
func (d *Dataset) Range(name string) (lo, hi float64, err error) {
	values, ok := d.Column(name)
	if !ok {
		return 0, 0, errs.Data("dataset %q: no real column %q", d.name, name)
	}
	if len(values) == 0 {
		return 0, 0, errs.Data("dataset %q is empty", d.name)
	}

	return floats.Min(values), floats.Max(values), nil
}

// InRange returns the entries whose variable lies in [lo, hi].
func (d *Dataset) InRange(variable string, lo, hi float64) (*Dataset, error) {
	values, ok := d.Column(variable)
	if !ok {
		return nil, errs.Data("dataset %q: no real column %q", d.name, variable)
	}
	if !(hi > lo) {
		return nil, errs.Configuration("invalid range [%g, %g]", lo, hi)
	}

	return d.subset(func(i int) bool {
		return values[i] >= lo && values[i] <= hi
	}), nil
}

// FilteredBy returns the entries that satisfy cut.
//
// The cut language supports comparisons between columns, numbers and quoted
// labels (< <= > >= == !=), combined with &&, || and ! and grouped with
// parentheses:
//
//	mass > 1.8 && mass < 1.95 && !(charge == "neg" || pt <= 2)
//
// An empty cut returns the receiver.
func (d *Dataset) FilteredBy(cut string) (*Dataset, error) {
	if cut == "" {
		return d, nil
	}

	pred, err := compileCut(cut, d)
	if err != nil {
		return nil, err
	}

	return d.subset(pred), nil
}

func (d *Dataset) subset(keep func(i int) bool) *Dataset {
	rows := make([]int, 0, d.n)
	for i := range d.n {
		if keep(i) {
			rows = append(rows, i)
		}
	}

	out := &Dataset{
		name:     d.name,
		n:        len(rows),
		index:    d.index,
		columns:  make([]Column, len(d.columns)),
		weighted: d.weighted,
	}
	for ci, c := range d.columns {
		nc := Column{Name: c.Name}
		if c.Real != nil {
			nc.Real = make([]float64, len(rows))
			for j, r := range rows {
				nc.Real[j] = c.Real[r]
			}
		} else {
			nc.Category = make([]string, len(rows))
			for j, r := range rows {
				nc.Category[j] = c.Category[r]
			}
		}
		out.columns[ci] = nc
	}

	if d.weighted {
		out.weights = make([]float64, len(rows))
		for j, r := range rows {
			out.weights[j] = d.weights[r]
		}
		out.sumW = floats.Sum(out.weights)
	} else {
		out.sumW = float64(out.n)
	}

	return out
}

func (d *Dataset) String() string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}

	return fmt.Sprintf("Dataset{name=%s, entries=%d, sumW=%g, columns=%v}", d.name, d.n, d.sumW, names)
}
