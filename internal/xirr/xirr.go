// Package xirr computes the annualised internal rate of return of irregularly dated
// cash flows.
package xirr

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	daysPerYear = 365.0

	newtonMaxIterations    = 100
	bisectionMaxIterations = 300
	tolerance              = 1e-9

	// Rates at or below -100% make (1+r)^-t undefined.
	minRate        = -0.999999
	initialGuess   = 0.1
	initialUpper   = 1.0
	maxUpper       = 10000.0
	maxBracketGrow = 20
)

// CashFlow is a signed amount on a date. Negative amounts are money paid in by the
// investor, positive amounts are money returned.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

// Compute returns the rate r, in percent, for which the net present value of flows is
// zero. It reports false when the rate is unavailable: fewer than two flows, all flows
// on one date, flows that never change sign, or no convergence within the iteration
// caps.
func Compute(flows []CashFlow) (float64, bool) {
	amounts, years, ok := prepare(flows)
	if !ok {
		return 0, false
	}
	if rate, ok := newton(amounts, years); ok {
		return rate * 100, true
	}
	if rate, ok := bisect(amounts, years); ok {
		return rate * 100, true
	}
	return 0, false
}

func prepare(flows []CashFlow) ([]float64, []float64, bool) {
	if len(flows) < 2 {
		return nil, nil, false
	}
	sorted := make([]CashFlow, len(flows))
	copy(sorted, flows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	start := sorted[0].Date
	amounts := make([]float64, len(sorted))
	years := make([]float64, len(sorted))
	var hasPositive, hasNegative bool
	for i, flow := range sorted {
		if math.IsNaN(flow.Amount) || math.IsInf(flow.Amount, 0) {
			return nil, nil, false
		}
		amounts[i] = flow.Amount
		years[i] = flow.Date.Sub(start).Hours() / 24 / daysPerYear
		if flow.Amount > 0 {
			hasPositive = true
		}
		if flow.Amount < 0 {
			hasNegative = true
		}
	}
	if years[len(years)-1] == 0 || !hasPositive || !hasNegative {
		return nil, nil, false
	}
	return amounts, years, true
}

func npv(rate float64, amounts, years []float64) float64 {
	factors := make([]float64, len(years))
	for i, t := range years {
		factors[i] = math.Pow(1+rate, -t)
	}
	return floats.Dot(amounts, factors)
}

func derivative(rate float64, amounts, years []float64) float64 {
	weights := make([]float64, len(years))
	for i, t := range years {
		weights[i] = -t * math.Pow(1+rate, -t-1)
	}
	return floats.Dot(amounts, weights)
}

func newton(amounts, years []float64) (float64, bool) {
	rate := initialGuess
	for i := 0; i < newtonMaxIterations; i++ {
		value := npv(rate, amounts, years)
		if math.Abs(value) < tolerance {
			return rate, true
		}
		slope := derivative(rate, amounts, years)
		if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
			return 0, false
		}
		next := rate - value/slope
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= minRate {
			return 0, false
		}
		if math.Abs(next-rate) < tolerance {
			return next, true
		}
		rate = next
	}
	return 0, false
}

func bisect(amounts, years []float64) (float64, bool) {
	low, high := minRate, initialUpper
	lowValue := npv(low, amounts, years)
	highValue := npv(high, amounts, years)
	for grow := 0; sameSign(lowValue, highValue); grow++ {
		if grow >= maxBracketGrow || high >= maxUpper {
			return 0, false
		}
		high = math.Min(high*2, maxUpper)
		highValue = npv(high, amounts, years)
	}
	for i := 0; i < bisectionMaxIterations; i++ {
		mid := (low + high) / 2
		midValue := npv(mid, amounts, years)
		if math.Abs(midValue) < tolerance || (high-low)/2 < tolerance {
			return mid, true
		}
		if sameSign(midValue, lowValue) {
			low, lowValue = mid, midValue
		} else {
			high = mid
		}
	}
	return 0, false
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
