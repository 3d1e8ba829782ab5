package format

import (
	"fmt"
	"strings"
)

type (
	FitMethod       uint8
	CompressionType uint8
)

const (
	UnbinnedML       FitMethod = 0x1 // UnbinnedML represents a plain unbinned maximum-likelihood fit.
	BinnedML         FitMethod = 0x2 // BinnedML represents a fit against a histogram of the fit variable.
	ExtendedML       FitMethod = 0x3 // ExtendedML represents an unbinned fit with the extended-likelihood term.
	RobustExtendedML FitMethod = 0x4 // RobustExtendedML represents the iterative retry fit with the extended term.

	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

var fitMethodNames = map[FitMethod]string{
	UnbinnedML:       "UnbinnedML",
	BinnedML:         "BinnedML",
	ExtendedML:       "ExtendedML",
	RobustExtendedML: "RobustExtendedML",
}

func (m FitMethod) String() string {
	if name, ok := fitMethodNames[m]; ok {
		return name
	}

	return "Unknown"
}

// IsValid reports whether m is one of the defined fit methods.
func (m FitMethod) IsValid() bool {
	_, ok := fitMethodNames[m]
	return ok
}

// Extended reports whether the method uses the extended-likelihood formulation.
func (m FitMethod) Extended() bool {
	return m == ExtendedML || m == RobustExtendedML
}

// ParseFitMethod maps a case-insensitive method name to a FitMethod.
func ParseFitMethod(name string) (FitMethod, error) {
	for m, n := range fitMethodNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return m, nil
		}
	}

	return 0, fmt.Errorf("unknown fit method %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (m FitMethod) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("invalid fit method 0x%x", uint8(m))
	}

	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so YAML and JSON
// configuration files can spell the method by name.
func (m *FitMethod) UnmarshalText(text []byte) error {
	parsed, err := ParseFitMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed

	return nil
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompression maps a case-insensitive compression name to a CompressionType.
func ParseCompression(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}
