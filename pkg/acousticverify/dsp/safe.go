// Package dsp holds the small numeric primitives the feature extractor is
// built from. Every divide and log in the extractor goes through SafeDiv and
// SafeLog so that silence and other degenerate input never yields NaN or Inf.
package dsp

import "math"

// Eps is float64 machine epsilon.
const Eps = 2.220446049250313e-16

// Finite reports whether x is neither NaN nor ±Inf.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Guard returns x, or 0 when x is not finite.
func Guard(x float64) float64 {
	if !Finite(x) {
		return 0
	}
	return x
}

// SafeDiv returns num/den, or 0 when den is (near) zero or the quotient is not finite.
func SafeDiv(num, den float64) float64 {
	if math.Abs(den) < Eps || math.IsNaN(den) {
		return 0
	}
	return Guard(num / den)
}

// SafeLog is the natural log with inputs below Eps clamped to Eps.
func SafeLog(x float64) float64 {
	if math.IsNaN(x) || x < Eps {
		x = Eps
	}
	return Guard(math.Log(x))
}

// SafeLog10 is SafeLog in base 10.
func SafeLog10(x float64) float64 {
	if math.IsNaN(x) || x < Eps {
		x = Eps
	}
	return Guard(math.Log10(x))
}

// Sanitize replaces every non-finite element of v with 0, in place.
func Sanitize(v []float64) []float64 {
	for i, x := range v {
		if !Finite(x) {
			v[i] = 0
		}
	}
	return v
}

// AllFinite reports whether every element of v is finite.
func AllFinite(v []float64) bool {
	for _, x := range v {
		if !Finite(x) {
			return false
		}
	}
	return true
}
