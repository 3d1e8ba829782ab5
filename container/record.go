package container

// Parameter is the persisted state of one fit parameter.
type Parameter struct {
	Name     string
	Value    float64
	Error    float64
	ErrorLo  float64
	ErrorHi  float64
	Min      float64
	Max      float64
	Constant bool
}

// Yield is a persisted derived yield with its propagated error.
type Yield struct {
	Name  string
	Value float64
	Error float64
}

// Snapshot is the persisted description of the model a result was fitted with.
type Snapshot struct {
	Name       string
	Observable string
	RangeMin   float64
	RangeMax   float64
	Signal     string
	Background string
	Parameters []Parameter
}

// Record is one named fit result as laid out in the container payload.
//
// Covariance is stored row-major over CovarianceNames.
type Record struct {
	Name             string
	FitTypeTag       string
	Timestamp        string
	Status           int32
	AuxStatus        int32
	CovQuality       int32
	Attempts         int32
	StrategyLevel    int32
	Terminal         uint8
	MinNLL           float64
	EDM              float64
	Parameters       []Parameter
	CovarianceNames  []string
	Covariance       []float64
	Yields           []Yield
	ChiSquare        float64
	NDF              float64
	ReducedChiSquare float64
	Snapshot         *Snapshot
}
