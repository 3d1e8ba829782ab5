package model

// Snapshot is a detached copy of a model's description and parameter state.
type Snapshot struct {
	Name       string
	Observable string
	RangeMin   float64
	RangeMax   float64
	Signal     string
	Background string
	Parameters []Parameter
}

// Snapshot captures the current parameter state of m.
func (m *Model) Snapshot() *Snapshot {
	s := &Snapshot{
		Name:       m.name,
		Observable: m.observable,
		RangeMin:   m.lo,
		RangeMax:   m.hi,
		Signal:     m.signal.Kind().String(),
	}
	if bkg := m.Background(); bkg != nil {
		s.Background = bkg.Kind().String()
	}

	for _, h := range m.Parameters() {
		s.Parameters = append(s.Parameters, m.ws.Param(h))
	}

	return s
}

// Parameter returns the named parameter of the snapshot.
func (s *Snapshot) Parameter(name string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}

	return Parameter{}, false
}
