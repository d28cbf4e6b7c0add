package humidity

import (
	"math"
	"strings"
)

// Formula selects the saturation vapour pressure approximation and the
// temperature range it is valid for.
type Formula int

const (
	Wetterochs Formula = iota
	Lawrence
)

const (
	// hPa at 0°C, shared by both approximations
	saturationAtZero = 6.1078

	molarMassWater  = 18.016 // g/mol
	gasConstant     = 8314.3 // J/(kmol*K)
	kelvinOffset    = 273.15
	absHumidityGain = 1e5 * molarMassWater / gasConstant
)

// magnus holds the a/b coefficients of a Magnus-type formula
// e(T) = 6.1078 * base^(a*T/(b+T)).
type magnus struct {
	a, b float64
}

type variant struct {
	key    string
	name   string
	minT   float64
	maxT   float64
	base10 bool
	coeffs func(t float64) magnus
}

var variants = [...]variant{
	Wetterochs: {
		key:    "wetterochs",
		name:   "Wetterochs",
		minT:   -45,
		maxT:   60,
		base10: true,
		coeffs: func(t float64) magnus {
			if t >= 0 {
				return magnus{a: 7.5, b: 237.3}
			}
			// over water
			return magnus{a: 7.6, b: 240.7}
		},
	},
	Lawrence: {
		key:    "lawrence",
		name:   "Lawrence",
		minT:   -40,
		maxT:   50,
		base10: false,
		coeffs: func(float64) magnus {
			return magnus{a: 17.625, b: 243.04}
		},
	},
}

// ParseFormula maps a configuration value to a Formula. Unknown or empty
// values fall back to Wetterochs; ok reports whether s was recognised.
func ParseFormula(s string) (f Formula, ok bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, v := range variants {
		if v.key == key {
			return Formula(i), true
		}
	}
	return Wetterochs, false
}

func (f Formula) variant() variant {
	if f < 0 || int(f) >= len(variants) {
		return variants[Wetterochs]
	}
	return variants[f]
}

// String returns the configuration key, e.g. "wetterochs".
func (f Formula) String() string { return f.variant().key }

// DisplayName is the name used in operator-facing error text.
func (f Formula) DisplayName() string { return f.variant().name }

// Range returns the inclusive valid temperature interval in °C.
func (f Formula) Range() (minT, maxT float64) {
	v := f.variant()
	return v.minT, v.maxT
}

// SaturationVaporPressure returns the saturation vapour pressure in hPa.
func (f Formula) SaturationVaporPressure(t float64) float64 {
	v := f.variant()
	c := v.coeffs(t)
	x := c.a * t / (c.b + t)
	if v.base10 {
		return saturationAtZero * math.Pow(10, x)
	}
	return saturationAtZero * math.Exp(x)
}

// Compute derives dew point (°C) and absolute humidity (g/m³) from a
// temperature and relative humidity already validated for f. Both results
// are rounded to two decimals.
func Compute(f Formula, temperature, relativeHumidity float64) (dewPoint, absoluteHumidity float64) {
	v := f.variant()
	c := v.coeffs(temperature)

	vapor := relativeHumidity / 100 * f.SaturationVaporPressure(temperature)

	var x float64
	if v.base10 {
		x = math.Log10(vapor / saturationAtZero)
	} else {
		x = math.Log(vapor / saturationAtZero)
	}
	dewPoint = c.b * x / (c.a - x)
	absoluteHumidity = absHumidityGain * vapor / (temperature + kelvinOffset)

	return round2(dewPoint), round2(absoluteHumidity)
}

func round2(x float64) float64 {
	r := math.Round(x*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
