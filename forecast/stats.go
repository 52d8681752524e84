package forecast

import "math"

// mean returns the arithmetic mean, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev returns the population standard deviation around the given mean.
func stdDev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// coefficientOfVariation returns stddev/mean, 0 when the mean is ~0.
func coefficientOfVariation(values []float64) float64 {
	m := mean(values)
	if m < 1e-9 {
		return 0
	}
	return stdDev(values, m) / m
}

// linearFit returns the OLS slope and intercept of values against 0..n-1.
func linearFit(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	if n < 2 {
		return 0, mean(values)
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if math.Abs(denom) < 1e-12 {
		return 0, mean(values)
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// clampNonNeg floors a value at zero and squashes NaN/Inf to zero.
func clampNonNeg(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// clamp01 restricts a value to [0, 1], squashing NaN to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// autocorrelation returns the lag-k autocorrelation of a centered series.
func autocorrelation(values []float64, lag int) float64 {
	n := len(values)
	if lag <= 0 || lag >= n {
		return 0
	}
	m := mean(values)
	var num, denom float64
	for i := 0; i < n; i++ {
		d := values[i] - m
		denom += d * d
	}
	if denom < 1e-12 {
		return 0
	}
	for i := lag; i < n; i++ {
		num += (values[i] - m) * (values[i-lag] - m)
	}
	return num / denom
}

// solveLinearSystem solves A·x = b in place using Gaussian elimination with
// partial pivoting. Returns false when the system is singular.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		// Pivot
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		// Eliminate below
		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	// Back substitution
	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return x, true
}

// levinsonDurbin solves the Yule-Walker equations for AR coefficients
// given autocorrelations r[0..order]. Returns nil when the recursion
// becomes degenerate.
func levinsonDurbin(r []float64, order int) []float64 {
	if order <= 0 || len(r) < order+1 || math.Abs(r[0]) < 1e-12 {
		return nil
	}
	phi := make([]float64, order+1)
	prev := make([]float64, order+1)
	e := r[0]

	for k := 1; k <= order; k++ {
		acc := r[k]
		for j := 1; j < k; j++ {
			acc -= prev[j] * r[k-j]
		}
		if math.Abs(e) < 1e-12 {
			return nil
		}
		reflection := acc / e
		phi[k] = reflection
		for j := 1; j < k; j++ {
			phi[j] = prev[j] - reflection*prev[k-j]
		}
		e *= 1 - reflection*reflection
		copy(prev, phi)
	}
	out := make([]float64, order)
	copy(out, phi[1:])
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}
	return out
}
