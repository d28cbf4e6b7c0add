package humidity

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrInvalidHumidity    = errors.New("invalid humidity")
	ErrInvalidTemperature = errors.New("invalid temperature")
)

// RangeError reports a measurement outside its valid domain. Error returns
// the operator-facing text; errors.Is matches ErrInvalidHumidity or
// ErrInvalidTemperature.
type RangeError struct {
	Kind    error
	Value   float64
	Formula Formula
}

func (e *RangeError) Error() string {
	if e.Kind == ErrInvalidHumidity {
		return fmt.Sprintf("Invalid humidity: %s%% (OK: 0-100%%)", formatNumber(e.Value))
	}
	minT, maxT := e.Formula.Range()
	return fmt.Sprintf("%s°C not valid for %s (%s-%s°C)",
		formatNumber(e.Value),
		e.Formula.DisplayName(),
		formatNumber(minT),
		formatNumber(maxT),
	)
}

func (e *RangeError) Unwrap() error { return e.Kind }

// ValidateHumidity checks rh against 0-100%.
func ValidateHumidity(rh float64) error {
	if !(rh >= 0 && rh <= 100) {
		return &RangeError{Kind: ErrInvalidHumidity, Value: rh}
	}
	return nil
}

// ValidateTemperature checks t against the inclusive range of f.
func ValidateTemperature(f Formula, t float64) error {
	minT, maxT := f.Range()
	if !(t >= minT && t <= maxT) {
		return &RangeError{Kind: ErrInvalidTemperature, Value: t, Formula: f}
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
